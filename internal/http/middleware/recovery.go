package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jobsturm/crm-local-sub000/internal/domain"
	"go.uber.org/zap"
)

// Recovery turns a panicking handler into a 500 response
func Recovery(logger *zap.Logger) func(http.Handler) http.Handler {
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

				LoggerFromContext(r.Context(), logger).Error("panic in handler",
					zap.String("panic", fmt.Sprint(rec)),
					zap.Stack("stack"),
				)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(domain.APIError{
					Type:   domain.ErrorTypeInternal,
					Title:  http.StatusText(http.StatusInternalServerError),
					Status: http.StatusInternalServerError,
				})
			}()

			next.ServeHTTP(w, r)
		})
	}
}
