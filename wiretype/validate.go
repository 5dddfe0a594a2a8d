package wiretype

import (
	"slices"
	"sort"
	"unicode/utf8"
)

// Validate runs the structural tier of validation (occurrences, length,
// numeric range, pattern, enumeration) over a native value. It behaves the
// same for every protocol. The returned error is Issues.
func Validate(t Type, v any) error {
	if iss := validateAt(t, v, "/"); len(iss) > 0 {
		return iss
	}
	return nil
}

// IsValid reports whether Validate succeeds.
func IsValid(t Type, v any) bool { return Validate(t, v) == nil }

// ValidateString validates a lexical form against a primitive type: it must
// parse, and length/pattern/enumeration apply to the text itself.
func ValidateString(t Type, s string) error {
	p, ok := t.(*Primitive)
	if !ok {
		return Issues{IssueAt("/", CodeInvalidType, map[string]any{"expected": "primitive"})}
	}
	v, err := FromString(p, s)
	if err != nil {
		return err
	}
	if iss := checkPrimitive(p, v, s, true, "/"); len(iss) > 0 {
		return iss
	}
	return nil
}

func validateAt(t Type, v any, path string) Issues {
	if v == nil {
		if !t.Attrs().Nillable {
			return Issues{IssueAt(path, CodeNotNillable, nil)}
		}
		return nil
	}
	switch tt := t.(type) {
	case *Primitive:
		return validatePrimitive(tt, v, path)
	case *Complex:
		return validateComplex(tt, v, path)
	case *Array:
		return validateArray(tt, v, path)
	}
	return Issues{IssueAt(path, CodeInvalidType, nil)}
}

func validatePrimitive(p *Primitive, v any, path string) Issues {
	if _, isStream := v.(ByteChunks); isStream && p.kind == KindBinary {
		// Streams are validated as they are consumed.
		return nil
	}
	lex, err := ToString(p, v)
	if err != nil {
		if iss, ok := AsIssues(err); ok {
			return iss.Rebase(path)
		}
		return Issues{IssueAt(path, CodeInvalidType, nil)}
	}
	return checkPrimitive(p, v, lex, p.kind != KindBinary, path)
}

func checkPrimitive(p *Primitive, v any, lex string, lexicalFacets bool, path string) Issues {
	a := p.attrs
	var iss Issues
	if n, ok := primitiveLength(p, v); ok {
		if a.MinLength >= 0 && n < a.MinLength {
			iss = AppendIssues(iss, IssueAt(path, CodeTooShort, map[string]any{"min": a.MinLength, "got": n}))
		}
		if a.MaxLength >= 0 && n > a.MaxLength {
			iss = AppendIssues(iss, IssueAt(path, CodeTooLong, map[string]any{"max": a.MaxLength, "got": n}))
		}
	}
	if f, ok := toFloat64(v); ok && (p.kind == KindInteger || p.kind == KindFloat) {
		if a.MinInclusive != nil && f < *a.MinInclusive {
			iss = AppendIssues(iss, IssueAt(path, CodeTooSmall, map[string]any{"min": *a.MinInclusive, "got": f}))
		}
		if a.MinExclusive != nil && f <= *a.MinExclusive {
			iss = AppendIssues(iss, IssueAt(path, CodeTooSmall, map[string]any{"gt": *a.MinExclusive, "got": f}))
		}
		if a.MaxInclusive != nil && f > *a.MaxInclusive {
			iss = AppendIssues(iss, IssueAt(path, CodeTooBig, map[string]any{"max": *a.MaxInclusive, "got": f}))
		}
		if a.MaxExclusive != nil && f >= *a.MaxExclusive {
			iss = AppendIssues(iss, IssueAt(path, CodeTooBig, map[string]any{"lt": *a.MaxExclusive, "got": f}))
		}
	}
	if lexicalFacets {
		if a.re != nil && !a.re.MatchString(lex) {
			iss = AppendIssues(iss, IssueAt(path, CodePattern, map[string]any{"pattern": a.Pattern}))
		}
		if len(a.Values) > 0 && !slices.Contains(a.Values, lex) {
			iss = AppendIssues(iss, IssueAt(path, CodeInvalidEnum, map[string]any{"got": lex}))
		}
	}
	return iss
}

func primitiveLength(p *Primitive, v any) (int, bool) {
	switch p.kind {
	case KindString:
		s, ok := v.(string)
		return utf8.RuneCountInString(s), ok
	case KindBinary:
		b, ok := v.([]byte)
		return len(b), ok
	}
	return 0, false
}

func validateComplex(c *Complex, v any, path string) Issues {
	m, ok := v.(map[string]any)
	if !ok {
		return Issues{IssueAt(path, CodeInvalidType, map[string]any{"expected": c.Name()})}
	}
	var iss Issues
	fields := c.Fields()
	known := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		known[f.Name] = struct{}{}
		iss = append(iss, validateField(f, m, joinPath(path, f.Name))...)
	}
	var unknown []string
	for k := range m {
		if _, ok := known[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	for _, k := range unknown {
		iss = AppendIssues(iss, IssueAt(joinPath(path, k), CodeUnknownKey, nil))
	}
	return iss
}

// validateField checks occurrence constraints and the field value(s).
func validateField(f Field, m map[string]any, path string) Issues {
	a := f.Type.Attrs()
	val, present := m[f.Name]
	if !present {
		if a.Required() {
			return Issues{IssueAt(path, CodeRequired, nil)}
		}
		return nil
	}
	if val == nil {
		if a.Nillable || !a.Required() {
			return nil
		}
		return Issues{IssueAt(path, CodeNotNillable, nil)}
	}
	if !a.Repeated() {
		return validateAt(f.Type, val, path)
	}
	if _, lazy := val.(Iterator); lazy {
		return nil
	}
	items, ok := val.([]any)
	if !ok {
		return Issues{IssueAt(path, CodeInvalidType, map[string]any{"expected": "sequence"})}
	}
	var iss Issues
	if len(items) < a.MinOccurs {
		iss = AppendIssues(iss, IssueAt(path, CodeTooFew, map[string]any{"min": a.MinOccurs, "got": len(items)}))
	}
	if a.MaxOccurs != Unbounded && len(items) > a.MaxOccurs {
		iss = AppendIssues(iss, IssueAt(path, CodeTooMany, map[string]any{"max": a.MaxOccurs, "got": len(items)}))
	}
	for i, it := range items {
		iss = append(iss, validateAt(f.Type, it, indexPath(path, i))...)
	}
	return iss
}

func validateArray(a *Array, v any, path string) Issues {
	if _, lazy := v.(Iterator); lazy {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return Issues{IssueAt(path, CodeInvalidType, map[string]any{"expected": a.Name()})}
	}
	ma := a.member.Attrs()
	var iss Issues
	if len(items) < ma.MinOccurs {
		iss = AppendIssues(iss, IssueAt(path, CodeTooFew, map[string]any{"min": ma.MinOccurs, "got": len(items)}))
	}
	for i, it := range items {
		iss = append(iss, validateAt(a.member, it, indexPath(path, i))...)
	}
	return iss
}
