package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"
)

// ErrorResponse is the JSON body of every gateway error.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries a stable machine code and a human message.
type ErrorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// WriteError writes an ErrorResponse with the request ID taken from r.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]any) {
	body := ErrorBody{Code: code, Message: message, Details: details}
	if r != nil {
		body.RequestID = GetRequestID(r.Context())
	}
	writeErrorResponse(w, body, status)
}

func writeErrorResponse(w http.ResponseWriter, body ErrorBody, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: body})
}

// Recovery turns a handler panic into a 500 INTERNAL_ERROR response.
func Recovery(next http.Handler) http.Handler {
	return RecoveryWithLogger(zap.NewNop())(next)
}

// RecoveryWithLogger is Recovery that also logs the panic and stack.
func RecoveryWithLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.Error("handler panic",
					zap.String("request_id", GetRequestID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Any("panic", rec),
					zap.ByteString("stack", debug.Stack()))
				WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", fmt.Sprintf("panic: %v", rec), nil)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
