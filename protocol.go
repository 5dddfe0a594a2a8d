package soapbox

// Protocol is the capability every input or output protocol carries. The
// pipeline capabilities are separate interfaces; an output-only protocol
// implements Serializer and Emitter only.
type Protocol interface {
	Name() string
}

// Parser turns raw request bytes into a protocol document and splits it.
type Parser interface {
	Protocol
	// CreateInDocument parses mc.InBytes into mc.InDocument.
	CreateInDocument(mc *MethodContext) error
	// DecomposeIncoming splits mc.InDocument into mc.InHeaderDoc and
	// mc.InBodyDoc and sets mc.RequestedName. It may set mc.Method
	// directly when the protocol resolves methods itself.
	DecomposeIncoming(mc *MethodContext) error
}

// Deserializer turns the split request into native arguments.
type Deserializer interface {
	Protocol
	// Deserialize fills mc.InArgs and mc.InHeaders for mc.Method.
	Deserialize(mc *MethodContext) error
}

// Serializer turns the outcome (mc.OutArgs or mc.Fault) into a document.
type Serializer interface {
	Protocol
	Serialize(mc *MethodContext) error
}

// Emitter renders mc.OutDocument into mc.OutChunks and sets
// mc.OutContentType.
type Emitter interface {
	Protocol
	CreateOutString(mc *MethodContext) error
}

// InputProtocol is a protocol usable on the request side.
type InputProtocol interface {
	Parser
	Deserializer
}

// OutputProtocol is a protocol usable on the response side.
type OutputProtocol interface {
	Serializer
	Emitter
}
