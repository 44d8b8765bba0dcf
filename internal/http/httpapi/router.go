package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"genlux/internal/http/handlers"
	"genlux/internal/middleware"
)

// Options configures the middleware stack around the handlers.
type Options struct {
	Logger          zerolog.Logger
	CORSOrigins     []string
	RateLimitPerMin int
	DefaultLocale   string
	CountryLookup   middleware.CountryLookup
}

func NewRouter(app *handlers.App, opts Options) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(
		chimw.RealIP,
		middleware.RequestID,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.CORSOrigins),
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
	)

	limited := middleware.RateLimit(opts.RateLimitPerMin, time.Minute)

	// Public
	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/readyz", app.Ready)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)
	r.With(limited).Post("/v1/auth/google", app.AuthGoogleVerify)

	// Authenticated
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(app.JWTSecret))

		r.Get("/v1/me", app.Me)
		r.Get("/v1/history", app.ListHistory)

		r.Route("/v1/credentials/gemini", func(r chi.Router) {
			r.Get("/", app.GeminiKeyStatus)
			r.With(limited).Put("/", app.PutGeminiKey)
			r.Delete("/", app.DeleteGeminiKey)
		})

		r.Route("/v1/videos", func(r chi.Router) {
			r.With(limited).Post("/", app.VideosGenerate)
			r.Get("/{job_id}", app.VideoStatus)
			r.Get("/{job_id}/events", app.VideoEvents)
			r.Get("/{job_id}/download", app.VideoDownload)
		})
	})

	return r
}
