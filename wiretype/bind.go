package wiretype

import (
	"github.com/juju/errors"
	"github.com/mitchellh/mapstructure"
)

// Bind decodes a native value (typically the map[string]any of a Complex
// type) into a Go struct. Struct fields are matched by their `wire` tag,
// falling back to a case-insensitive field name match.
func Bind(value any, target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "wire",
		Result:  target,
	})
	if err != nil {
		return errors.Trace(err)
	}
	if err := dec.Decode(value); err != nil {
		return errors.Annotate(err, "binding wire value")
	}
	return nil
}
