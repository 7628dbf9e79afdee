package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/Adithya-Monish-Kumar-K/repo-search/pkg/logger"
)

// Recover turns a handler panic into a 500 with the usual JSON error body.
// Timeout runs handlers on their own goroutine, where net/http cannot catch
// panics, so it applies Recover itself.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			p := recover()
			if p == nil || p == http.ErrAbortHandler {
				return
			}
			logger.FromContext(r.Context()).Error("handler panicked",
				"method", r.Method,
				"path", r.URL.Path,
				"panic", p,
				"stack", string(debug.Stack()),
			)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":"internal server error","status":500}`))
		}()
		next.ServeHTTP(w, r)
	})
}
