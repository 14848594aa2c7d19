// internal/protocol/classify.go
package protocol

import (
	"github.com/embershell/embershell/api/schemas"
	"github.com/embershell/embershell/internal/engine"
)

// Classify turns a handler's return value into a concrete Strategy. It is a
// pure function: all "what shape did the handler return" logic lives here,
// so it is testable without any scripting environment.
//
// Order matters. Plain text payloads win, then the tagged job-request
// shapes, then the original handler when one exists, then the terminal
// not-implemented fallback. Unrecognized values never produce an error;
// they degrade.
func Classify(result any, hasOriginal bool) Strategy {
	switch v := result.(type) {
	case string:
		return plainText([]byte(v))
	case []byte:
		return plainText(append([]byte(nil), v...))
	case schemas.StringJobRequest:
		return Strategy{Kind: StrategyString, MimeType: v.MimeType, Charset: v.Charset, Data: []byte(v.Data)}
	case schemas.BufferJobRequest:
		return Strategy{Kind: StrategyBuffer, MimeType: v.MimeType, Encoding: v.Encoding, Data: append([]byte(nil), v.Data...)}
	case schemas.FileJobRequest:
		return Strategy{Kind: StrategyFile, Path: v.Path}
	case schemas.ErrorJobRequest:
		code := v.Code
		if code == 0 {
			code = engine.ErrCodeNotImplemented
		}
		return Strategy{Kind: StrategyError, Code: code}
	case schemas.HTTPJobRequest:
		return Strategy{Kind: StrategyHTTP, URL: v.URL, Method: v.Method, Referrer: v.Referrer}
	}

	if hasOriginal {
		return Strategy{Kind: StrategyFallback}
	}
	return Strategy{Kind: StrategyUnimplemented, Code: engine.ErrCodeNotImplemented}
}

func plainText(data []byte) Strategy {
	return Strategy{Kind: StrategyPlainText, MimeType: "text/plain", Charset: "UTF-8", Data: data}
}
