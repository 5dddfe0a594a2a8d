// Package soapbox exposes declared remote methods over several wire
// protocols at once.
//
// - Wire types and structural validation live in wiretype/
// - Method and service declarations live in service/
// - Protocols live under protocol/ (soap, xmldoc, mapping, httpform)
// - The interface contract generator lives in wsdl/
//
// The root package holds the Application, its Interface registry, the
// per-call MethodContext, the staged pipeline with its hook slots, the
// Dispatcher and the fault model shared by every protocol.
//
// Typical usage:
//
//	hello := service.Rpc("say_hello", sayHello).
//		Param("name", wiretype.String).
//		Param("times", wiretype.Integer).
//		Returns(wiretype.Iterable(wiretype.String)).
//		MustBuild()
//	svc := service.Define("HelloWorldService").Methods(hello).MustBuild()
//	app, err := soapbox.NewApplication("hello", "urn:hello", soap.New11(), soap.New11(), svc)
//	d := soapbox.NewDispatcher(app)
//	http.Handle("/", httpx.Handler(d))
package soapbox
