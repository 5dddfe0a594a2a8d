package soapbox_test

import (
	"net/http"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/juju/errors"

	"github.com/reoring/soapbox"
	"github.com/reoring/soapbox/wiretype"
)

func TestFaultFromError(t *testing.T) {
	c := qt.New(t)
	tests := []struct {
		err  error
		code string
	}{
		{errors.NotFoundf("user"), soapbox.FaultResourceNotFound},
		{errors.NotValidf("age"), soapbox.FaultArgument},
		{errors.Annotate(errors.Forbiddenf("admin area"), "checking"), soapbox.FaultNotAllowed},
		{errors.NotSupportedf("format"), soapbox.FaultNotAllowed},
		{errors.New("disk full"), soapbox.FaultServer},
		{errors.Trace(soapbox.ClientFault("Custom", "x")), "Client.Custom"},
	}
	for _, test := range tests {
		c.Check(soapbox.FaultFromError(test.err).Code, qt.Equals, test.code, qt.Commentf("%v", test.err))
	}
	c.Assert(soapbox.FaultFromError(nil), qt.IsNil)

	iss := wiretype.Issues{wiretype.IssueAt("/age", wiretype.CodeTooSmall, map[string]any{"min": 0})}
	f := soapbox.FaultFromError(iss)
	c.Assert(f.Code, qt.Equals, soapbox.FaultValidation)
	detail := f.Detail.(map[string]any)["issue"].([]any)
	c.Assert(detail, qt.HasLen, 1)
	c.Assert(detail[0].(map[string]any)["path"], qt.Equals, "/age")
	c.Assert(detail[0].(map[string]any)["code"], qt.Equals, wiretype.CodeTooSmall)
	c.Assert(errors.Is(f, soapbox.NewFault(soapbox.FaultValidation, "")), qt.IsTrue)
}

func TestFaultCodes(t *testing.T) {
	c := qt.New(t)
	f := soapbox.ServerFault("Database.Timeout", "slow")
	c.Assert(f.Code, qt.Equals, "Server.Database.Timeout")
	c.Assert(f.Class(), qt.Equals, soapbox.CodeServer)
	c.Assert(f.IsServer(), qt.IsTrue)
	c.Assert(f.HasCode("Server.Database"), qt.IsTrue)
	c.Assert(f.HasCode("Server.Data"), qt.IsFalse)
	c.Assert(f.Error(), qt.Equals, "Server.Database.Timeout: slow")
	c.Assert(soapbox.ClientFault("", "").Code, qt.Equals, soapbox.CodeClient)
}

func TestDefaultStatus(t *testing.T) {
	c := qt.New(t)
	tests := []struct {
		fault  *soapbox.Fault
		status int
	}{
		{nil, http.StatusOK},
		{soapbox.ClientFault("ValidationError", ""), http.StatusBadRequest},
		{soapbox.NewFault(soapbox.FaultMethodNotFound, ""), http.StatusNotFound},
		{soapbox.NewFault(soapbox.FaultResourceNotFound+".User", ""), http.StatusNotFound},
		{soapbox.NewFault(soapbox.FaultNotAllowed, ""), http.StatusForbidden},
		{soapbox.NewFault(soapbox.FaultRequestTooLong, ""), http.StatusRequestEntityTooLarge},
		{soapbox.ServerFault("", ""), http.StatusInternalServerError},
		{soapbox.NewFault("VersionMismatch", ""), http.StatusInternalServerError},
	}
	for _, test := range tests {
		c.Check(soapbox.DefaultStatus(test.fault), qt.Equals, test.status, qt.Commentf("%v", test.fault))
	}
}
