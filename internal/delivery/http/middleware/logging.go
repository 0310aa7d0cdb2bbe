package middleware

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// statusRecorder запоминает статус ответа для журнала доступа.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Logging пишет журнал доступа: метод, путь, статус и длительность запроса.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		// Внедряем глобальный логгер в контекст запроса.
		next.ServeHTTP(rec, r.WithContext(log.Logger.WithContext(r.Context())))

		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request handled")
	})
}
