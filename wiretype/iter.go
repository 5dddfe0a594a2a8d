package wiretype

import (
	"context"
	"io"
	"iter"
)

// Iterator is a lazy, single-pass, non-restartable producer of array items.
// The transport pulls items one at a time; Next returns io.EOF once the
// sequence is exhausted. Close releases the producer and is idempotent.
type Iterator interface {
	Next(ctx context.Context) (any, error)
	Close() error
}

// FromSlice returns an Iterator over items.
func FromSlice(items []any) Iterator { return &sliceIter{items: items} }

type sliceIter struct {
	items []any
	pos   int
}

func (s *sliceIter) Next(ctx context.Context) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.items) {
		return nil, io.EOF
	}
	v := s.items[s.pos]
	s.pos++
	return v, nil
}

func (s *sliceIter) Close() error { s.pos = len(s.items); return nil }

// FromSeq adapts a range-over-func sequence. The sequence is only advanced
// when Next is called.
func FromSeq(seq iter.Seq[any]) Iterator {
	next, stop := iter.Pull(seq)
	return &pullIter{next: next, stop: stop}
}

type pullIter struct {
	next func() (any, bool)
	stop func()
	done bool
}

func (p *pullIter) Next(ctx context.Context) (any, error) {
	if p.done {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, ok := p.next()
	if !ok {
		p.done = true
		p.stop()
		return nil, io.EOF
	}
	return v, nil
}

func (p *pullIter) Close() error {
	if !p.done {
		p.done = true
		p.stop()
	}
	return nil
}

// FromFunc wraps a generator function; fn returns io.EOF when done.
func FromFunc(fn func(ctx context.Context) (any, error), closeFn func() error) Iterator {
	return &funcIter{fn: fn, closeFn: closeFn}
}

type funcIter struct {
	fn      func(ctx context.Context) (any, error)
	closeFn func() error
	closed  bool
}

func (f *funcIter) Next(ctx context.Context) (any, error) {
	if f.closed {
		return nil, io.EOF
	}
	return f.fn(ctx)
}

func (f *funcIter) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	if f.closeFn != nil {
		return f.closeFn()
	}
	return nil
}

// Collect drains it into a slice and closes it.
func Collect(ctx context.Context, it Iterator) ([]any, error) {
	defer it.Close()
	var out []any
	for {
		v, err := it.Next(ctx)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
}
