// Package config loads application options from YAML or TOML files.
//
// Both formats share one key set:
//
//	max_request_length   = 2097152
//	aux_workers          = 4
//	strict_array_indices = true
//	ignore_wrappers      = true
//	validation           = "schema"   # structural, none or schema
//	log_level            = "soapbox=DEBUG"
//	base_url             = "http://localhost:8080/soap"
//
// Keys missing from the file keep their defaults. Unknown keys are errors.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/reoring/soapbox"
	"github.com/reoring/soapbox/protocol/httpform"
	"github.com/reoring/soapbox/protocol/mapping"
)

var logger = loggo.GetLogger("soapbox.config")

// Options are the file-configurable settings of an Application and its
// protocols.
type Options struct {
	MaxRequestLength   int64  `config:"max_request_length"`
	AuxWorkers         int    `config:"aux_workers"`
	StrictArrayIndices bool   `config:"strict_array_indices"`
	IgnoreWrappers     bool   `config:"ignore_wrappers"`
	Validation         string `config:"validation"`
	LogLevel           string `config:"log_level"`
	BaseURL            string `config:"base_url"`
}

// Default returns the options of an unconfigured Application.
func Default() Options {
	return Options{
		MaxRequestLength: soapbox.DefaultMaxRequestLength,
		AuxWorkers:       4,
		Validation:       "structural",
	}
}

// Load reads path, choosing the format from its extension (.yaml, .yml or
// .toml), over the defaults.
func Load(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, errors.Annotatef(err, "reading config %q", path)
	}
	var format string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = "yaml"
	case ".toml":
		format = "toml"
	default:
		return Options{}, errors.NotSupportedf("config format %q", filepath.Ext(path))
	}
	opts, err := Parse(data, format)
	if err != nil {
		return Options{}, errors.Annotatef(err, "config %q", path)
	}
	logger.Debugf("loaded %s", path)
	return opts, nil
}

// Parse decodes data in format ("yaml" or "toml") over the defaults.
func Parse(data []byte, format string) (Options, error) {
	raw := map[string]any{}
	switch format {
	case "yaml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return Options{}, errors.Annotate(err, "decoding yaml")
		}
	case "toml":
		if _, err := toml.Decode(string(data), &raw); err != nil {
			return Options{}, errors.Annotate(err, "decoding toml")
		}
	default:
		return Options{}, errors.NotSupportedf("config format %q", format)
	}

	opts := Default()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "config",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &opts,
	})
	if err != nil {
		return Options{}, errors.Trace(err)
	}
	if err := dec.Decode(raw); err != nil {
		return Options{}, errors.NewNotValid(err, "config")
	}
	if _, err := opts.validation(); err != nil {
		return Options{}, err
	}
	if opts.AuxWorkers < 1 {
		return Options{}, errors.NotValidf("aux_workers %d", opts.AuxWorkers)
	}
	return opts, nil
}

func (o Options) validation() (soapbox.Validation, error) {
	switch strings.ToLower(o.Validation) {
	case "", "structural":
		return soapbox.ValidateStructural, nil
	case "none":
		return soapbox.ValidateNone, nil
	case "schema":
		return soapbox.ValidateSchema, nil
	}
	return 0, errors.NotValidf("validation %q", o.Validation)
}

// Apply sets the Application level options and configures logging.
func (o Options) Apply(app *soapbox.Application) error {
	v, err := o.validation()
	if err != nil {
		return err
	}
	app.Validation = v
	app.MaxRequestLength = o.MaxRequestLength
	if o.AuxWorkers > 0 {
		app.AuxWorkers = o.AuxWorkers
	}
	if o.LogLevel != "" {
		if err := loggo.ConfigureLoggers(o.LogLevel); err != nil {
			return errors.Annotatef(err, "log_level %q", o.LogLevel)
		}
	}
	return nil
}

// FormOptions returns the HTTP form binding options.
func (o Options) FormOptions() httpform.Options {
	return httpform.Options{StrictArrayIndices: o.StrictArrayIndices}
}

// MappingOptions returns the mapping protocol options.
func (o Options) MappingOptions() mapping.Options {
	return mapping.Options{IgnoreWrappers: o.IgnoreWrappers}
}
