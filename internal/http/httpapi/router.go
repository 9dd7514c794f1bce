package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"jewelshot/internal/http/handlers"
	"jewelshot/internal/middleware"
	"jewelshot/internal/ratelimit"
)

type Options struct {
	JWTSecret     string
	DefaultLocale string
	CORSOrigins   []string
	CountryLookup middleware.CountryLookup
	// Advisory per-caller request limit applied in front of the handlers.
	AdvisoryLimit  int
	AdvisoryWindow time.Duration
	// StaticDir serves locally stored objects under /static when set.
	StaticDir string
	Logger    zerolog.Logger
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.CORSOrigins),
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
	)

	if opts.StaticDir != "" {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir))))
	}

	advisory := ratelimit.New(ratelimit.NewMemoryStore(), ratelimit.WithPrefix("advisory"))
	window := opts.AdvisoryWindow
	if window <= 0 {
		window = time.Minute
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/healthz", app.Health)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthJWT(opts.JWTSecret))
			r.Use(middleware.RateLimit(advisory, opts.AdvisoryLimit, window, opts.Logger))

			r.Get("/credits", app.Credits)
			r.Get("/queue", app.QueueDepths)

			r.Route("/jobs", func(r chi.Router) {
				r.Post("/", app.SubmitJob)
				r.Get("/{id}", app.GetJob)
				r.Get("/{id}/stream", app.StreamJob)
			})

			r.Route("/batches", func(r chi.Router) {
				r.Post("/", app.CreateBatch)
				r.Get("/{id}", app.GetBatch)
				r.Post("/{id}/process-next", app.ProcessNext)
				r.Get("/{id}/archive", app.BatchArchive)
			})
		})
	})

	return r
}
