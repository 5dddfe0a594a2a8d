package xmlcodec

import (
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/reoring/soapbox/wiretype"
)

// ValidateSchema checks el against the grammar t describes: child elements
// appear in declared field order, unknown elements are rejected, occurrence
// bounds hold and every leaf has a valid lexical form. It complements the
// structural tier, which only sees decoded native values.
func ValidateSchema(el *etree.Element, t wiretype.Type) error {
	var iss wiretype.Issues
	schemaCheck(el, t, "/", &iss)
	if len(iss) > 0 {
		return iss
	}
	return nil
}

func schemaCheck(el *etree.Element, t wiretype.Type, path string, iss *wiretype.Issues) {
	if IsNil(el) {
		if !t.Attrs().Nillable {
			*iss = append(*iss, wiretype.IssueAt(path, wiretype.CodeNotNillable, nil))
		}
		return
	}
	switch tt := t.(type) {
	case *wiretype.Primitive:
		k := tt.PrimitiveKind()
		if k == wiretype.KindAnyDocument || k == wiretype.KindBinary {
			return
		}
		if len(el.ChildElements()) > 0 {
			*iss = append(*iss, wiretype.IssueAt(path, wiretype.CodeInvalidType, map[string]any{"expected": tt.Name()}))
			return
		}
		text := el.Text()
		if k != wiretype.KindString {
			text = strings.TrimSpace(text)
		}
		if err := wiretype.ValidateString(tt, text); err != nil {
			if more, ok := wiretype.AsIssues(err); ok {
				*iss = append(*iss, more.Rebase(path)...)
			}
		}
	case *wiretype.Complex:
		checkSequence(el, tt, path, iss)
	case *wiretype.Array:
		member := tt.Member()
		for i, k := range el.ChildElements() {
			p := childPath(path, strconv.Itoa(i))
			if k.Tag != member.Name() {
				*iss = append(*iss, wiretype.IssueAt(p, wiretype.CodeUnknownKey, map[string]any{"element": k.Tag}))
				continue
			}
			schemaCheck(k, member, p, iss)
		}
	}
}

// checkSequence walks the children of el against the declared fields of c
// as an xs:sequence.
func checkSequence(el *etree.Element, c *wiretype.Complex, path string, iss *wiretype.Issues) {
	fields := c.Fields()
	kids := el.ChildElements()
	pos := 0
	for _, f := range fields {
		a := f.Type.Attrs()
		n := 0
		for pos < len(kids) && kids[pos].Tag == f.Name {
			p := childPath(path, f.Name)
			if a.Repeated() {
				p = childPath(p, strconv.Itoa(n))
			}
			schemaCheck(kids[pos], f.Type, p, iss)
			n++
			pos++
		}
		fp := childPath(path, f.Name)
		if n < a.MinOccurs {
			code := wiretype.CodeRequired
			if n > 0 {
				code = wiretype.CodeTooFew
			}
			*iss = append(*iss, wiretype.IssueAt(fp, code, map[string]any{"min": a.MinOccurs, "got": n}))
		}
		switch {
		case !a.Repeated() && n > 1:
			*iss = append(*iss, wiretype.IssueAt(fp, wiretype.CodeDuplicateKey, map[string]any{"element": f.Name}))
		case a.MaxOccurs != wiretype.Unbounded && n > a.MaxOccurs:
			*iss = append(*iss, wiretype.IssueAt(fp, wiretype.CodeTooMany, map[string]any{"max": a.MaxOccurs, "got": n}))
		}
	}
	for ; pos < len(kids); pos++ {
		code := wiretype.CodeUnknownKey
		if _, known := c.Field(kids[pos].Tag); known {
			// declared, but out of sequence
			code = wiretype.CodeInvalidIndex
		}
		*iss = append(*iss, wiretype.IssueAt(childPath(path, kids[pos].Tag), code, nil))
	}
}
