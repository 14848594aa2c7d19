// api/schemas/protocol.go
package schemas

// Request is the read-only descriptor handed to a protocol handler for each
// incoming request. It deliberately carries only the fields a handler may
// inspect; the live engine request never crosses into the scripting layer.
type Request struct {
	Method   string
	URL      string
	Referrer string
}

// ProtocolHandler decides how a request for its scheme should be answered.
// It is invoked exactly once per request, always on the control context, and
// returns either a plain string payload or one of the job-request shapes
// below. Any other value falls through to the original handler (when
// intercepting) or to a not-implemented response.
//
// Handlers must not rely on shared mutable captured state; the same callable
// is invoked for every request on its scheme.
type ProtocolHandler func(req Request) any

// StringJobRequest asks the engine to answer with an in-memory string body.
// Absent fields default to empty strings.
type StringJobRequest struct {
	MimeType string
	Charset  string
	Data     string
}

// BufferJobRequest asks the engine to answer with a binary body. Data is an
// owned copy; decoders must copy script-owned buffers out before the handler
// call returns, since the script buffer's lifetime ends with the call.
type BufferJobRequest struct {
	MimeType string
	Encoding string
	Data     []byte
}

// FileJobRequest asks the engine to answer with the contents of a local file.
type FileJobRequest struct {
	Path string
}

// ErrorJobRequest asks the engine to fail the request with a numeric engine
// error code. A zero Code is treated as "not implemented".
type ErrorJobRequest struct {
	Code int
}

// HTTPJobRequest asks the engine to answer by delegating to a real HTTP
// request.
type HTTPJobRequest struct {
	URL      string
	Method   string
	Referrer string
}
