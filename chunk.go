package soapbox

import (
	"bytes"
	"context"
	"io"
	"sort"

	"github.com/reoring/soapbox/wiretype"
)

// Chunk is one part of an emitted response: either static bytes or a lazy
// producer pulled by the transport.
type Chunk struct {
	data []byte
	lazy wiretype.ByteChunks
}

// StaticChunk wraps bytes that are already rendered.
func StaticChunk(b []byte) Chunk { return Chunk{data: b} }

// LazyChunk wraps a producer that is only driven during emission.
func LazyChunk(c wiretype.ByteChunks) Chunk { return Chunk{lazy: c} }

// Lazy reports whether the chunk is produced during emission.
func (c Chunk) Lazy() bool { return c.lazy != nil }

// Bytes returns the static content, nil for lazy chunks.
func (c Chunk) Bytes() []byte { return c.data }

// IteratorChunks renders items of it one at a time. render receives the
// item index; its output is emitted as is.
func IteratorChunks(it wiretype.Iterator, render func(i int, item any) ([]byte, error)) wiretype.ByteChunks {
	return &iterChunks{it: it, render: render}
}

type iterChunks struct {
	it     wiretype.Iterator
	render func(int, any) ([]byte, error)
	n      int
}

func (c *iterChunks) Next(ctx context.Context) ([]byte, error) {
	v, err := c.it.Next(ctx)
	if err != nil {
		return nil, err
	}
	b, err := c.render(c.n, v)
	c.n++
	return b, err
}

func (c *iterChunks) Close() error { return c.it.Close() }

// splitChunks cuts doc at every occurrence of a registered placeholder and
// puts the matching producer in its place. Placeholders may appear in any
// order in doc.
func splitChunks(doc []byte, streams []stream) []Chunk {
	type hit struct {
		at int
		s  stream
	}
	var hits []hit
	for _, s := range streams {
		i := bytes.Index(doc, s.placeholder)
		if i < 0 {
			// dropped by the serializer
			_ = s.producer.Close()
			continue
		}
		hits = append(hits, hit{at: i, s: s})
	}
	sort.Slice(hits, func(a, b int) bool { return hits[a].at < hits[b].at })

	var out []Chunk
	pos := 0
	for _, h := range hits {
		if h.at > pos {
			out = append(out, StaticChunk(doc[pos:h.at]))
		}
		out = append(out, LazyChunk(h.s.producer))
		pos = h.at + len(h.s.placeholder)
	}
	if pos < len(doc) {
		out = append(out, StaticChunk(doc[pos:]))
	}
	return out
}

type stream struct {
	placeholder []byte
	producer    wiretype.ByteChunks
}

// emit writes chunks through write, checking for cancellation at every
// chunk boundary.
func emit(ctx context.Context, chunks []Chunk, write func([]byte) error) error {
	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.lazy == nil {
			if err := write(c.data); err != nil {
				return err
			}
			continue
		}
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			b, err := c.lazy.Next(ctx)
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}
			if len(b) == 0 {
				continue
			}
			if err := write(b); err != nil {
				return err
			}
		}
	}
	return nil
}
