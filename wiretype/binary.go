package wiretype

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"io"

	"github.com/juju/errors"
)

// EncodeBinary renders b with the given encoding. EncodingRaw and
// EncodingDefault return b unchanged.
func EncodeBinary(enc Encoding, b []byte) []byte {
	switch enc {
	case EncodingBase64:
		out := make([]byte, base64.StdEncoding.EncodedLen(len(b)))
		base64.StdEncoding.Encode(out, b)
		return out
	case EncodingHex:
		out := make([]byte, hex.EncodedLen(len(b)))
		hex.Encode(out, b)
		return out
	default:
		return b
	}
}

// DecodeBinary reverses EncodeBinary.
func DecodeBinary(enc Encoding, b []byte) ([]byte, error) {
	switch enc {
	case EncodingBase64:
		out := make([]byte, base64.StdEncoding.DecodedLen(len(b)))
		n, err := base64.StdEncoding.Decode(out, b)
		if err != nil {
			return nil, errors.Annotate(err, "base64")
		}
		return out[:n], nil
	case EncodingHex:
		out := make([]byte, hex.DecodedLen(len(b)))
		n, err := hex.Decode(out, b)
		if err != nil {
			return nil, errors.Annotate(err, "hex")
		}
		return out[:n], nil
	default:
		return b, nil
	}
}

// ByteChunks is a lazy, finite sequence of byte chunks used for large binary
// payloads. Next returns io.EOF after the last chunk.
type ByteChunks interface {
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// Chunks returns ByteChunks over in-memory parts.
func Chunks(parts ...[]byte) ByteChunks { return &sliceChunks{parts: parts} }

type sliceChunks struct {
	parts [][]byte
	pos   int
}

func (s *sliceChunks) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.parts) {
		return nil, io.EOF
	}
	p := s.parts[s.pos]
	s.pos++
	return p, nil
}

func (s *sliceChunks) Close() error { return nil }

// ReaderChunks reads r in chunks of at most size bytes. Closing the
// ByteChunks closes r when it is an io.Closer.
func ReaderChunks(r io.Reader, size int) ByteChunks {
	if size <= 0 {
		size = 32 << 10
	}
	return &readerChunks{r: r, size: size}
}

type readerChunks struct {
	r    io.Reader
	size int
}

func (c *readerChunks) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	buf := make([]byte, c.size)
	n, err := io.ReadFull(c.r, buf)
	switch {
	case n > 0:
		return buf[:n], nil
	case err == io.ErrUnexpectedEOF || err == io.EOF:
		return nil, io.EOF
	default:
		return nil, err
	}
}

func (c *readerChunks) Close() error {
	if cl, ok := c.r.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}

// ReadAllChunks drains c into memory and closes it.
func ReadAllChunks(ctx context.Context, c ByteChunks) ([]byte, error) {
	defer c.Close()
	var out []byte
	for {
		b, err := c.Next(ctx)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
}
