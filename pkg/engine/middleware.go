package engine

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	domainerrors "github.com/ignitionstack/ember/pkg/engine/errors"
)

type HandlerFunc func(http.ResponseWriter, *http.Request) error

type Middleware func(HandlerFunc) HandlerFunc

func (h *Handlers) withMiddleware(handler HandlerFunc, middlewares ...Middleware) http.HandlerFunc {
	for _, middleware := range middlewares {
		handler = middleware(handler)
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if err := handler(w, r); err != nil {
			h.logger.Errorf("Unhandled error in handler: %v", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
	}
}

func (h *Handlers) methodMiddleware(method string) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) error {
			if r.Method != method {
				http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
				return nil
			}
			return next(w, r)
		}
	}
}

// errorMiddleware renders handler errors as JSON, mapping domain errors to
// HTTP statuses with ErrorToStatusCode.
func (h *Handlers) errorMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) error {
			err := next(w, r)
			if err == nil {
				return nil
			}

			status := ErrorToStatusCode(err)
			message := err.Error()
			var reqErr RequestError
			if errors.As(err, &reqErr) {
				message = reqErr.Message
			}

			h.logger.Errorf("Handler error (%s %s): %v", r.Method, r.URL.Path, err)

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)

			response := map[string]interface{}{
				"error":  message,
				"status": status,
			}

			if de, ok := domainerrors.As(err); ok {
				response["domain"] = string(de.ErrDomain)
				response["code"] = string(de.ErrCode)
				if de.PluginID != "" {
					response["plugin_id"] = de.PluginID
				}
			}

			if encodeErr := json.NewEncoder(w).Encode(response); encodeErr != nil {
				h.logger.Errorf("Failed to encode error response: %v", encodeErr)
			}
			return nil
		}
	}
}

func (h *Handlers) loggingMiddleware(route string) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) error {
			start := time.Now()

			rw := newResponseWriter(w)

			err := next(rw, r)

			duration := time.Since(start)
			h.logger.Debugf("%s %s %d %s", r.Method, r.URL.Path, rw.statusCode, duration)
			if h.metrics != nil {
				status := rw.statusCode
				if err != nil {
					status = ErrorToStatusCode(err)
				}
				h.metrics.RecordHTTPRequest(r.Method, route, status)
			}

			return err
		}
	}
}

func (h *Handlers) corsMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) error {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return nil
			}

			return next(w, r)
		}
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{w, http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
