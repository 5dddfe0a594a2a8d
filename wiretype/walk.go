package wiretype

// Reachable returns every type reachable from roots, deduplicated by QName.
// Dependencies come before the types that use them: a base type precedes
// its derived types and field types precede their container. The order is
// fully determined by the roots' declaration order.
func Reachable(roots ...Type) []Type {
	c := collector{seen: map[QName]bool{}}
	for _, r := range roots {
		if r != nil {
			c.visit(r)
		}
	}
	return c.out
}

type collector struct {
	seen map[QName]bool
	out  []Type
}

func (c *collector) visit(t Type) {
	q := t.QName()
	if c.seen[q] {
		return
	}
	c.seen[q] = true
	switch tt := t.(type) {
	case *Complex:
		if tt.base != nil {
			c.visit(tt.base)
		}
		for _, f := range tt.fields {
			c.visit(f.Type)
		}
	case *Array:
		c.visit(tt.member)
	}
	c.out = append(c.out, t)
}

// Declared reports whether t needs its own definition in a schema document,
// that is, everything but the built-in primitives.
func Declared(t Type) bool {
	if p, ok := t.(*Primitive); ok {
		return !p.IsBuiltin()
	}
	return true
}
