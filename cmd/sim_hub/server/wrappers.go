package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/eval-hub/sim-hub/internal/abstractions"
	"github.com/eval-hub/sim-hub/internal/executioncontext"
	"github.com/eval-hub/sim-hub/internal/logging"
	"github.com/eval-hub/sim-hub/internal/messages"
	"github.com/eval-hub/sim-hub/pkg/api"
)

// ReqWrapper adapts a net/http request to http_wrappers.RequestWrapper
type ReqWrapper struct {
	Request *http.Request
	body    []byte
	read    bool
}

func NewRequestWrapper(r *http.Request) *ReqWrapper {
	return &ReqWrapper{Request: r}
}

func (r *ReqWrapper) Method() string {
	return r.Request.Method
}

func (r *ReqWrapper) URI() string {
	return r.Request.URL.RequestURI()
}

func (r *ReqWrapper) Header(key string) string {
	return r.Request.Header.Get(key)
}

func (r *ReqWrapper) SetHeader(key string, value string) {
	r.Request.Header.Set(key, value)
}

func (r *ReqWrapper) Path() string {
	return r.Request.URL.Path
}

func (r *ReqWrapper) Query(key string) []string {
	return r.Request.URL.Query()[key]
}

// BodyAsBytes reads the body once, later calls return the same bytes
func (r *ReqWrapper) BodyAsBytes() ([]byte, error) {
	if r.read {
		return r.body, nil
	}
	r.read = true
	if r.Request.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(r.Request.Body)
	if err != nil {
		return nil, err
	}
	r.body = body
	return body, nil
}

func (r *ReqWrapper) PathValue(name string) string {
	return r.Request.PathValue(name)
}

// RespWrapper adapts a net/http response writer to http_wrappers.ResponseWrapper
type RespWrapper struct {
	w   http.ResponseWriter
	ctx *executioncontext.ExecutionContext
}

func NewRespWrapper(w http.ResponseWriter, ctx *executioncontext.ExecutionContext) *RespWrapper {
	return &RespWrapper{w: w, ctx: ctx}
}

// Error writes a service error with its own message code, any other error is reported as unknown
func (r *RespWrapper) Error(err error, requestId string) {
	var serviceError abstractions.ServiceError
	if errors.As(err, &serviceError) {
		r.ErrorWithMessageCode(requestId, serviceError.MessageCode(), serviceError.MessageParams()...)
		return
	}
	r.ErrorWithMessageCode(requestId, messages.UnknownError, "Error", err.Error())
}

func (r *RespWrapper) ErrorWithMessageCode(requestId string, messageCode *messages.MessageCode, messageParams ...any) {
	msg := messages.GetErrorMessage(messageCode, messageParams...)
	code := messageCode.GetCode()
	r.w.Header().Del("Content-Length")
	r.w.Header().Set("X-Content-Type-Options", "nosniff")
	r.writeJSON(api.Error{
		MessageCode: http.StatusText(code),
		Message:     msg,
		Trace:       requestId,
	}, code)
	logging.LogRequestFailed(r.ctx, code, msg)
}

func (r *RespWrapper) SetHeader(key string, value string) {
	r.w.Header().Set(key, value)
}

func (r *RespWrapper) DeleteHeader(key string) {
	r.w.Header().Del(key)
}

func (r *RespWrapper) SetStatusCode(code int) {
	r.w.WriteHeader(code)
}

func (r *RespWrapper) Write(buf []byte) (int, error) {
	return r.w.Write(buf)
}

func (r *RespWrapper) WriteJSON(v any, code int) {
	r.writeJSON(v, code)
	logging.LogRequestSuccess(r.ctx, code)
}

func (r *RespWrapper) writeJSON(v any, code int) {
	body, err := json.Marshal(v)
	if err != nil {
		code = http.StatusInternalServerError
		body, _ = json.Marshal(api.Error{
			MessageCode: http.StatusText(code),
			Message:     messages.GetErrorMessage(messages.InternalServerError, "Error", err.Error()),
			Trace:       r.ctx.RequestID,
		})
	}
	r.w.Header().Set("Content-Type", "application/json")
	r.w.WriteHeader(code)
	if _, err := r.w.Write(body); err != nil {
		r.ctx.Logger.Error("Failed to write the response", "error", err.Error())
	}
}
