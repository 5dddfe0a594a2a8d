package soapbox

import (
	"github.com/juju/errors"

	"github.com/reoring/soapbox/service"
	"github.com/reoring/soapbox/wiretype"
)

// ArgsFromValue turns the decoded request body into the ordered argument
// list of mc.Method. For wrapped methods v is a map keyed by parameter name
// in any order; for bare methods it is the single parameter value. Defaults
// are filled in and, unless disabled, structural validation runs before any
// argument reaches the handler.
func ArgsFromValue(mc *MethodContext, v any) ([]any, error) {
	m := mc.Method
	if m == nil {
		return nil, errors.NotValidf("deserializing without a resolved method")
	}
	validate := mc.App == nil || mc.App.Validation != ValidateNone
	switch m.Style() {
	case service.Empty:
		return nil, nil
	case service.Bare:
		p, _ := m.BareParam()
		if v == nil {
			if dv, ok := p.Type.Attrs().DefaultValue(); ok {
				v = dv
			}
		}
		if validate {
			if err := validateParam(p, v); err != nil {
				return nil, err
			}
		}
		return []any{v}, nil
	}
	in, ok := v.(map[string]any)
	if !ok && v != nil {
		return nil, wiretype.Issues{wiretype.IssueAt("/", wiretype.CodeInvalidType, map[string]any{"expected": m.In().Name()})}
	}
	if in == nil {
		in = map[string]any{}
	}
	fillDefaults(m.In(), in)
	if validate {
		if err := wiretype.Validate(m.In(), in); err != nil {
			return nil, err
		}
	}
	params := m.Params()
	args := make([]any, len(params))
	for i, p := range params {
		args[i] = in[p.Name]
	}
	return args, nil
}

// HeadersFromMap orders decoded header values by the declared input headers
// and validates each present one.
func HeadersFromMap(mc *MethodContext, hs map[string]any) ([]any, error) {
	m := mc.Method
	declared := m.InHeaders()
	if len(declared) == 0 {
		return nil, nil
	}
	validate := mc.App == nil || mc.App.Validation != ValidateNone
	out := make([]any, len(declared))
	var iss wiretype.Issues
	for i, h := range declared {
		v, ok := hs[h.Name]
		if !ok {
			if h.Type.Attrs().Required() && validate {
				iss = append(iss, wiretype.IssueAt("/"+h.Name, wiretype.CodeRequired, nil))
			}
			continue
		}
		if validate {
			if err := wiretype.Validate(h.Type, v); err != nil {
				if more, ok := wiretype.AsIssues(err); ok {
					iss = append(iss, more.Rebase("/"+h.Name)...)
				}
			}
		}
		out[i] = v
	}
	if len(iss) > 0 {
		return nil, iss
	}
	return out, nil
}

// ResultValue is the inverse of ArgsFromValue for the response: a map of
// result name to value, or the single value of an out_bare method.
func ResultValue(m *service.Method, results []any) any {
	if _, ok := m.BareResult(); ok {
		if len(results) == 0 {
			return nil
		}
		return results[0]
	}
	out := make(map[string]any, len(results))
	for i, r := range m.Results() {
		if i < len(results) {
			out[r.Name] = results[i]
		}
	}
	return out
}

// ResultsFromValue reads the results of m back from a decoded response
// value, following declared order.
func ResultsFromValue(m *service.Method, v any) []any {
	if _, ok := m.BareResult(); ok {
		return []any{v}
	}
	mv, _ := v.(map[string]any)
	rs := m.Results()
	out := make([]any, len(rs))
	for i, r := range rs {
		out[i] = mv[r.Name]
	}
	return out
}

// HeaderMap pairs output header values with their declared names. Unset
// headers are left out.
func HeaderMap(params []service.Param, values []any) map[string]any {
	out := map[string]any{}
	for i, p := range params {
		if i < len(values) && values[i] != nil {
			out[p.Name] = values[i]
		}
	}
	return out
}

func validateParam(p service.Param, v any) error {
	if v == nil {
		a := p.Type.Attrs()
		if a.Required() {
			return wiretype.Issues{wiretype.IssueAt("/"+p.Name, wiretype.CodeRequired, nil)}
		}
		return nil
	}
	if err := wiretype.Validate(p.Type, v); err != nil {
		if iss, ok := wiretype.AsIssues(err); ok {
			return iss.Rebase("/" + p.Name)
		}
		return err
	}
	return nil
}

// fillDefaults sets declared defaults for absent fields of c.
func fillDefaults(c *wiretype.Complex, v map[string]any) {
	for _, f := range c.Fields() {
		if _, ok := v[f.Name]; ok {
			continue
		}
		if dv, ok := f.Type.Attrs().DefaultValue(); ok {
			v[f.Name] = dv
		}
	}
}
