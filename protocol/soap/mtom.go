package soap

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"

	"github.com/juju/errors"
)

// rootID is the Content-ID of the envelope part of an MTOM package.
const rootID = "root.message@soapbox"

type attachment struct {
	id   string
	data []byte
}

// writeMultipart packages an envelope and its attachments as
// multipart/related and returns the body and its Content-Type.
func writeMultipart(envelope []byte, atts []attachment, v Version) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := textproto.MIMEHeader{}
	h.Set("Content-Type", fmt.Sprintf("application/xop+xml; charset=UTF-8; type=%q", v.MediaType()))
	h.Set("Content-Transfer-Encoding", "binary")
	h.Set("Content-ID", "<"+rootID+">")
	w, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", errors.Trace(err)
	}
	if _, err := w.Write(envelope); err != nil {
		return nil, "", errors.Trace(err)
	}
	for _, a := range atts {
		h := textproto.MIMEHeader{}
		h.Set("Content-Type", "application/octet-stream")
		h.Set("Content-Transfer-Encoding", "binary")
		h.Set("Content-ID", "<"+a.id+">")
		w, err := mw.CreatePart(h)
		if err != nil {
			return nil, "", errors.Trace(err)
		}
		if _, err := w.Write(a.data); err != nil {
			return nil, "", errors.Trace(err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", errors.Trace(err)
	}
	ct := fmt.Sprintf(`multipart/related; type="application/xop+xml"; boundary=%q; start="<%s>"; start-info=%q`,
		mw.Boundary(), rootID, v.MediaType())
	return buf.Bytes(), ct, nil
}

// readMultipart unpacks an MTOM package. The part named by the start
// parameter, or the first part, is the envelope; the others are keyed by
// their Content-ID without angle brackets.
func readMultipart(data []byte, params map[string]string) ([]byte, map[string][]byte, error) {
	boundary := params["boundary"]
	if boundary == "" {
		return nil, nil, errors.NotValidf("multipart request without a boundary")
	}
	start := strings.Trim(params["start"], "<>")
	mr := multipart.NewReader(bytes.NewReader(data), boundary)
	var root []byte
	atts := map[string][]byte{}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, errors.Annotate(err, "reading multipart request")
		}
		body, err := io.ReadAll(part)
		if err != nil {
			return nil, nil, errors.Annotate(err, "reading multipart request")
		}
		if strings.EqualFold(part.Header.Get("Content-Transfer-Encoding"), "base64") {
			dec := make([]byte, base64.StdEncoding.DecodedLen(len(body)))
			n, err := base64.StdEncoding.Decode(dec, bytes.Join(bytes.Fields(body), nil))
			if err != nil {
				return nil, nil, errors.Annotate(err, "decoding base64 part")
			}
			body = dec[:n]
		}
		id := strings.Trim(part.Header.Get("Content-ID"), "<>")
		if root == nil && (start == "" || id == start) {
			root = body
			continue
		}
		atts[id] = body
	}
	if root == nil {
		return nil, nil, errors.NotFoundf("envelope part %q", start)
	}
	return root, atts, nil
}
