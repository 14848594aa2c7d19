// internal/protocol/strategy.go
package protocol

// StrategyKind tags the concrete way a request will be answered.
type StrategyKind int

const (
	// StrategyPlainText serves an in-memory body as text/plain UTF-8.
	StrategyPlainText StrategyKind = iota
	// StrategyString serves an in-memory body with handler-chosen mime and
	// charset.
	StrategyString
	// StrategyBuffer serves an in-memory binary body.
	StrategyBuffer
	// StrategyFile serves a local file.
	StrategyFile
	// StrategyError fails the request with an engine error code.
	StrategyError
	// StrategyHTTP delegates to a real HTTP request.
	StrategyHTTP
	// StrategyFallback re-enters the original handler the interception
	// replaced. Only valid when such a handler exists.
	StrategyFallback
	// StrategyUnimplemented is the terminal fallback when nothing else
	// applies.
	StrategyUnimplemented
)

// String returns the tag name for logging.
func (k StrategyKind) String() string {
	switch k {
	case StrategyPlainText:
		return "plain_text"
	case StrategyString:
		return "string"
	case StrategyBuffer:
		return "buffer"
	case StrategyFile:
		return "file"
	case StrategyError:
		return "error"
	case StrategyHTTP:
		return "http"
	case StrategyFallback:
		return "fallback"
	case StrategyUnimplemented:
		return "unimplemented"
	}
	return "unknown"
}

// Strategy is the tagged variant the decision dispatcher produces from a
// handler's return value. It is built once per request and consumed exactly
// once by the adapter job; only the fields relevant to Kind are set.
type Strategy struct {
	Kind StrategyKind

	MimeType string
	Charset  string
	Encoding string
	Data     []byte

	Path string

	Code int

	URL      string
	Method   string
	Referrer string
}
