package middleware

import (
	"net"
	"net/http"
	"net/url"

	"github.com/go-chi/cors"
	"github.com/jobsturm/crm-local-sub000/internal/config"
	"go.uber.org/zap"
)

// CORS admits the desktop shell. Pages served from a loopback host are
// always allowed; other origins must be listed in the config.
func CORS(cfg *config.CORSConfig, logger *zap.Logger) func(http.Handler) http.Handler {
	listed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		listed[origin] = true
	}

	logger.Info("CORS configured for loopback origins",
		zap.Strings("extra_origins", cfg.AllowedOrigins))

	return cors.Handler(cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			return listed[origin] || isLoopbackOrigin(origin)
		},
		AllowedMethods:   cfg.AllowedMethods,
		AllowedHeaders:   cfg.AllowedHeaders,
		ExposedHeaders:   cfg.ExposedHeaders,
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           cfg.MaxAge,
	})
}

// isLoopbackOrigin reports whether origin is an http(s) origin on
// localhost or a loopback address, on any port
func isLoopbackOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
