package wiretype_test

import (
	"encoding/json"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/reoring/soapbox/wiretype"
)

func issueCodes(t *testing.T, err error) []string {
	t.Helper()
	if err == nil {
		return nil
	}
	iss, ok := wiretype.AsIssues(err)
	if !ok {
		t.Fatalf("expected Issues, got %T: %v", err, err)
	}
	var out []string
	for _, it := range iss {
		out = append(out, it.Code+"@"+it.Path)
	}
	return out
}

func personType() *wiretype.Complex {
	return wiretype.NewComplex("Person", "urn:people").
		Field("name", wiretype.String.Customize(wiretype.Required(), wiretype.MinLength(2), wiretype.MaxLength(10))).
		Field("age", wiretype.Integer.Customize(wiretype.Ge(0), wiretype.Lt(150))).
		Field("email", wiretype.String.Customize(wiretype.Pattern(`[^@]+@[^@]+`))).
		Field("tags", wiretype.String.Customize(wiretype.MaxOccurs(2))).
		MustBuild()
}

func TestValidateComplex(t *testing.T) {
	p := personType()
	tests := []struct {
		name  string
		value map[string]any
		want  []string
	}{
		{"valid", map[string]any{"name": "Dave", "age": int64(40), "email": "d@x", "tags": []any{"a"}}, nil},
		{"missing required", map[string]any{"age": 3}, []string{"required@/name"}},
		{"null required", map[string]any{"name": nil}, []string{"not_nillable@/name"}},
		{"too short", map[string]any{"name": "D"}, []string{"too_short@/name"}},
		{"range", map[string]any{"name": "Dave", "age": 150}, []string{"too_big@/age"}},
		{"negative", map[string]any{"name": "Dave", "age": -1}, []string{"too_small@/age"}},
		{"pattern anchored", map[string]any{"name": "Dave", "email": "x@y@z"}, []string{"pattern@/email"}},
		{"too many", map[string]any{"name": "Dave", "tags": []any{"a", "b", "c"}}, []string{"too_many@/tags"}},
		{"unknown", map[string]any{"name": "Dave", "zzz": 1}, []string{"unknown_key@/zzz"}},
		{"wrong type", map[string]any{"name": 12}, []string{"invalid_type@/name"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := issueCodes(t, wiretype.Validate(p, tt.value))
			qt.Assert(t, got, qt.DeepEquals, tt.want)
		})
	}
}

func TestValidateArrayMembers(t *testing.T) {
	c := qt.New(t)
	arr := wiretype.NewArray(wiretype.Integer.Customize(wiretype.Ge(1), wiretype.MinOccurs(2)))
	c.Assert(wiretype.Validate(arr, []any{int64(1), int64(2)}), qt.IsNil)
	c.Assert(issueCodes(t, wiretype.Validate(arr, []any{int64(1)})), qt.DeepEquals, []string{"too_few@/"})
	c.Assert(issueCodes(t, wiretype.Validate(arr, []any{int64(1), int64(0)})), qt.DeepEquals, []string{"too_small@/1"})
	// lazy values are validated while they are produced
	c.Assert(wiretype.Validate(arr, wiretype.FromSlice(nil)), qt.IsNil)
}

func TestValidateEnumAndString(t *testing.T) {
	c := qt.New(t)
	color := wiretype.String.Named("Color", "urn:x", wiretype.Enum("red", "green"))
	c.Assert(wiretype.IsValid(color, "red"), qt.IsTrue)
	c.Assert(wiretype.IsValid(color, "blue"), qt.IsFalse)
	c.Assert(wiretype.ValidateString(color, "green"), qt.IsNil)

	c.Assert(issueCodes(t, wiretype.ValidateString(wiretype.Integer, "12x")), qt.DeepEquals, []string{"invalid_format@/"})
	small := wiretype.Integer.Customize(wiretype.Le(5))
	c.Assert(issueCodes(t, wiretype.ValidateString(small, "6")), qt.DeepEquals, []string{"too_big@/"})
}

func TestNillableTopLevel(t *testing.T) {
	c := qt.New(t)
	c.Assert(wiretype.Validate(wiretype.String, nil), qt.IsNil)
	c.Assert(issueCodes(t, wiretype.Validate(wiretype.String.Customize(wiretype.Nillable(false)), nil)), qt.DeepEquals, []string{"not_nillable@/"})
}

func TestLexicalRoundTrip(t *testing.T) {
	c := qt.New(t)
	when := time.Date(2024, 3, 1, 10, 30, 0, 500, time.UTC)
	tests := []struct {
		typ   wiretype.Type
		value any
		lex   string
	}{
		{wiretype.String, "hi", "hi"},
		{wiretype.Integer, int64(-42), "-42"},
		{wiretype.Float, 1.5, "1.5"},
		{wiretype.Boolean, true, "true"},
		{wiretype.DateTime, when, "2024-03-01T10:30:00.0000005Z"},
		{wiretype.Date, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), "2024-03-01"},
		{wiretype.Duration, 26*time.Hour + 90*time.Second, "P1DT2H1M30S"},
		{wiretype.Binary, []byte("hello"), "aGVsbG8="},
		{wiretype.Binary.Customize(wiretype.Encoded(wiretype.EncodingHex)), []byte{0xde, 0xad}, "dead"},
	}
	for _, tt := range tests {
		lex, err := wiretype.ToString(tt.typ, tt.value)
		c.Assert(err, qt.IsNil)
		c.Assert(lex, qt.Equals, tt.lex)
		back, err := wiretype.FromString(tt.typ, lex)
		c.Assert(err, qt.IsNil)
		c.Assert(back, qt.DeepEquals, tt.value)
	}
}

func TestCoerceNumbers(t *testing.T) {
	c := qt.New(t)
	v, err := wiretype.Coerce(wiretype.Integer, 3)
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.Equals, int64(3))
	v, err = wiretype.Coerce(wiretype.Integer, float64(7))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.Equals, int64(7))
	_, err = wiretype.Coerce(wiretype.Integer, 7.5)
	c.Assert(err, qt.Not(qt.IsNil))
	v, err = wiretype.Coerce(wiretype.Float, int64(2))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.Equals, 2.0)

	_, err = wiretype.Coerce(wiretype.Integer, float64(1<<53))
	c.Assert(err, qt.Not(qt.IsNil))
	v, err = wiretype.Coerce(wiretype.Integer, json.Number("9007199254740993"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.Equals, int64(9007199254740993))
	v, err = wiretype.Coerce(wiretype.Integer, json.Number("4.0"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.Equals, int64(4))
}

func TestParseDuration(t *testing.T) {
	c := qt.New(t)
	d, err := wiretype.ParseDuration("-PT1.5S")
	c.Assert(err, qt.IsNil)
	c.Assert(d, qt.Equals, -1500*time.Millisecond)
	_, err = wiretype.ParseDuration("P1Y")
	c.Assert(err, qt.Not(qt.IsNil))
	c.Assert(wiretype.FormatDuration(0), qt.Equals, "PT0S")
}
