package xmldoc_test

import (
	"bytes"
	"context"
	"net/http"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/reoring/soapbox"
	"github.com/reoring/soapbox/protocol/xmldoc"
	"github.com/reoring/soapbox/service"
	"github.com/reoring/soapbox/wiretype"
)

const tns = "urn:soapbox:xmldoc"

func newDispatcher(c *qt.C, validation soapbox.Validation, ms ...*service.Method) *soapbox.Dispatcher {
	p := xmldoc.New(xmldoc.Options{})
	app, err := soapbox.NewApplication("doc", tns, p, p, service.Define("svc").Methods(ms...).MustBuild())
	c.Assert(err, qt.IsNil)
	app.Validation = validation
	return soapbox.NewDispatcher(app)
}

func call(c *qt.C, d *soapbox.Dispatcher, body string) *soapbox.ResponseRecorder {
	rec := &soapbox.ResponseRecorder{}
	err := d.Serve(context.Background(), soapbox.HostRequest{Body: bytes.NewBufferString(body)}, rec)
	c.Assert(err, qt.IsNil)
	return rec
}

func add() *service.Method {
	return service.Rpc("add", func(ctx context.Context, args []any) ([]any, error) {
		return []any{args[0].(int64) + args[1].(int64)}, nil
	}).Param("a", wiretype.Integer.Customize(wiretype.Required())).
		Param("b", wiretype.Integer.Customize(wiretype.Default(int64(1)))).
		Returns(wiretype.Integer).MustBuild()
}

func TestDocumentCall(t *testing.T) {
	c := qt.New(t)
	d := newDispatcher(c, soapbox.ValidateStructural, add())

	rec := call(c, d, `<add xmlns="`+tns+`"><a>2</a><b>3</b></add>`)
	c.Assert(rec.Status, qt.Equals, http.StatusOK)
	c.Assert(rec.Header.Get("Content-Type"), qt.Equals, xmldoc.ContentType)
	c.Assert(rec.Body.String(), qt.Contains, `<tns:addResponse xmlns:tns="`+tns+`"><tns:addResult>5</tns:addResult></tns:addResponse>`)

	rec = call(c, d, `<add xmlns="`+tns+`"><a>2</a></add>`)
	c.Assert(rec.Body.String(), qt.Contains, `<tns:addResult>3</tns:addResult>`)
}

func TestDocumentFault(t *testing.T) {
	c := qt.New(t)
	d := newDispatcher(c, soapbox.ValidateStructural, add())

	rec := call(c, d, `<add xmlns="`+tns+`"><a>two</a></add>`)
	c.Assert(rec.Status, qt.Equals, http.StatusBadRequest)
	f, err := xmldoc.ReadFault(rec.Body.Bytes())
	c.Assert(err, qt.IsNil)
	c.Assert(f.Code, qt.Equals, soapbox.FaultValidation)
	issue := f.Detail.(map[string]any)["issue"].(map[string]any)
	c.Assert(issue["path"], qt.Equals, "/a")
	c.Assert(issue["code"], qt.Equals, wiretype.CodeInvalidFormat)
}

func TestSchemaValidationRejectsUnknownElements(t *testing.T) {
	c := qt.New(t)
	body := `<add xmlns="` + tns + `"><a>2</a><z/></add>`

	rec := call(c, newDispatcher(c, soapbox.ValidateStructural, add()), body)
	c.Assert(rec.Status, qt.Equals, http.StatusOK)

	rec = call(c, newDispatcher(c, soapbox.ValidateSchema, add()), body)
	c.Assert(rec.Status, qt.Equals, http.StatusBadRequest)
	f, err := xmldoc.ReadFault(rec.Body.Bytes())
	c.Assert(err, qt.IsNil)
	c.Assert(f.Detail.(map[string]any)["issue"].(map[string]any)["code"], qt.Equals, wiretype.CodeUnknownKey)
}
