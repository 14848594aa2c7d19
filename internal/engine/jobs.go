// internal/engine/jobs.go
package engine

import (
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// The concrete jobs below are the engine's response strategies. Each Start
// runs on the processing loop; jobs doing real IO hop to their own goroutine
// and post the delivery back onto the loop.

// StartStringJob answers req with an in-memory string body.
// Processing-loop confined.
func (e *Engine) StartStringJob(req *Request, mimeType, charset string, data []byte) {
	(&stringJob{req: req, mimeType: mimeType, charset: charset, data: data}).Start()
}

// StartBufferJob answers req with a binary body. Processing-loop confined.
func (e *Engine) StartBufferJob(req *Request, mimeType, encoding string, data []byte) {
	(&bufferJob{req: req, mimeType: mimeType, encoding: encoding, data: data}).Start()
}

// StartFileJob answers req with the contents of a local file.
// Processing-loop confined.
func (e *Engine) StartFileJob(req *Request, path string) {
	(&fileJob{engine: e, req: req, path: path}).Start()
}

// StartErrorJob fails req with an engine error code. Processing-loop
// confined.
func (e *Engine) StartErrorJob(req *Request, code int) {
	(&errorJob{req: req, code: code}).Start()
}

// StartHTTPJob answers req by performing a real HTTP request.
// Processing-loop confined.
func (e *Engine) StartHTTPJob(req *Request, rawURL, method, referrer string) {
	(&httpJob{engine: e, req: req, url: rawURL, method: method, referrer: referrer}).Start()
}

// stringJob serves a text body that is already in memory.
type stringJob struct {
	req      *Request
	mimeType string
	charset  string
	data     []byte
}

func (j *stringJob) Start() {
	j.req.Deliver(&Response{MimeType: j.mimeType, Charset: j.charset, Data: j.data}, nil)
}

// bufferJob serves a binary body. Unlike stringJob it carries a transfer
// encoding rather than a charset.
type bufferJob struct {
	req      *Request
	mimeType string
	encoding string
	data     []byte
}

func (j *bufferJob) Start() {
	j.req.Deliver(&Response{MimeType: j.mimeType, Encoding: j.encoding, Data: j.data}, nil)
}

type errorJob struct {
	req  *Request
	code int
}

func (j *errorJob) Start() {
	j.req.Deliver(nil, &StatusError{Code: j.code})
}

type fileJob struct {
	engine *Engine
	req    *Request
	path   string
}

func (j *fileJob) Start() {
	go func() {
		data, err := os.ReadFile(j.path)
		j.engine.loop.Post(func() {
			if err != nil {
				j.engine.logger.Warn("file job failed",
					zap.String("id", j.req.ID),
					zap.String("path", j.path),
					zap.Error(err))
				j.req.Deliver(nil, &StatusError{Code: ErrCodeFileNotFound})
				return
			}
			mimeType := mime.TypeByExtension(filepath.Ext(j.path))
			if mimeType == "" {
				mimeType = "application/octet-stream"
			}
			j.req.Deliver(&Response{MimeType: mimeType, Data: data}, nil)
		})
	}()
}

type httpJob struct {
	engine   *Engine
	req      *Request
	url      string
	method   string
	referrer string
}

func (j *httpJob) Start() {
	method := j.method
	if method == "" {
		method = j.req.Method
	}
	go func() {
		resp, err := j.fetch(method)
		j.engine.loop.Post(func() {
			if err != nil {
				j.engine.logger.Warn("http job failed",
					zap.String("id", j.req.ID),
					zap.String("url", j.url),
					zap.Error(err))
				j.req.Deliver(nil, &StatusError{Code: ErrCodeFailed})
				return
			}
			j.req.Deliver(resp, nil)
		})
	}()
}

func (j *httpJob) fetch(method string) (*Response, error) {
	httpReq, err := http.NewRequest(method, j.url, nil)
	if err != nil {
		return nil, err
	}
	if j.referrer != "" {
		httpReq.Header.Set("Referer", j.referrer)
	}

	httpResp, err := j.engine.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}

	mimeType, charset := splitContentType(httpResp.Header.Get("Content-Type"))
	return &Response{MimeType: mimeType, Charset: charset, Data: body}, nil
}

func splitContentType(contentType string) (mimeType, charset string) {
	if contentType == "" {
		return "", ""
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return contentType, ""
	}
	return mediaType, params["charset"]
}
