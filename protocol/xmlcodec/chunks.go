package xmlcodec

import (
	"context"
	"io"

	"github.com/reoring/soapbox/wiretype"
)

// EncodeChunks encodes a binary stream chunk by chunk. Base64 output is
// aligned on 3-byte groups so the concatenation equals the encoding of the
// whole payload.
func EncodeChunks(src wiretype.ByteChunks, enc wiretype.Encoding) wiretype.ByteChunks {
	return &encodedChunks{src: src, enc: enc}
}

type encodedChunks struct {
	src  wiretype.ByteChunks
	enc  wiretype.Encoding
	rest []byte
	done bool
}

func (c *encodedChunks) Next(ctx context.Context) ([]byte, error) {
	for !c.done {
		b, err := c.src.Next(ctx)
		if err == io.EOF {
			c.done = true
			break
		}
		if err != nil {
			return nil, err
		}
		if c.enc != wiretype.EncodingBase64 {
			return wiretype.EncodeBinary(c.enc, b), nil
		}
		buf := append(c.rest, b...)
		n := len(buf) - len(buf)%3
		c.rest = append([]byte(nil), buf[n:]...)
		if n > 0 {
			return wiretype.EncodeBinary(c.enc, buf[:n]), nil
		}
	}
	if len(c.rest) > 0 {
		out := wiretype.EncodeBinary(c.enc, c.rest)
		c.rest = nil
		return out, nil
	}
	return nil, io.EOF
}

func (c *encodedChunks) Close() error { return c.src.Close() }
