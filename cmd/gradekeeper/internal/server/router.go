// Package server exposes the gradekeeper services over HTTP.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/access"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/gate"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/identity"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/services/academicyear"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/services/assignment"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/services/grade"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/services/ledger"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/services/lesson"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// RouterOptions controls the construction of the gradekeeper HTTP router.
type RouterOptions struct {
	Grades      *grade.Service
	Years       *academicyear.Service
	Assignments *assignment.Service
	Lessons     *lesson.Service
	Ledger      *ledger.Service

	Gate     *gate.Gate
	Resolver *identity.Resolver
	// Cookies, when set, moves the access cache into a signed client cookie.
	Cookies *access.CookieCodec

	Logger        zerolog.Logger
	CORSOptions   *cors.Options
	Middleware    []func(http.Handler) http.Handler
	HealthHandler http.HandlerFunc
}

// DefaultCORSOptions returns the development CORS policy.
func DefaultCORSOptions() cors.Options {
	return cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://127.0.0.1:5173"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

func defaultHealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// NewRouter assembles a chi.Router with shared middleware and the API mounted.
func NewRouter(opts RouterOptions) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(opts.Logger))
	r.Use(middleware.Recoverer)

	corsCfg := DefaultCORSOptions()
	if opts.CORSOptions != nil {
		corsCfg = *opts.CORSOptions
	}
	r.Use(cors.Handler(corsCfg))

	for _, mw := range opts.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	healthHandler := opts.HealthHandler
	if healthHandler == nil {
		healthHandler = defaultHealthHandler
	}
	r.Get("/health", healthHandler)

	h := &handlers{opts: opts}

	r.Group(func(r chi.Router) {
		r.Use(identityMiddleware(opts.Resolver, opts.Logger))
		r.Use(requireIdentity(opts.Logger))
		if opts.Cookies != nil {
			r.Use(cookieAccessMiddleware(opts.Cookies, opts.Gate, opts.Logger))
		}

		r.Post("/auth/session", h.signIn)
		r.Delete("/auth/session", h.signOut)

		r.Route("/api", func(r chi.Router) {
			r.Get("/me", h.whoAmI)

			r.Get("/grades", h.listGrades)
			r.Post("/grades", h.createGrade)
			r.Get("/grades/{gradeID}", h.getGrade)
			r.Get("/grades/{gradeID}/academic-years", h.listGradeYears)
			r.Get("/grades/{gradeID}/academic-years/active", h.activeYear)
			r.Get("/grades/{gradeID}/assignments", h.gradeAssignments)

			r.Post("/academic-years", h.createYear)
			r.Post("/academic-years/complete-all", h.completeAll)
			r.Get("/academic-years/{yearID}", h.getYear)
			r.Delete("/academic-years/{yearID}", h.deleteYear)
			r.Post("/academic-years/{yearID}/activate", h.activateYear)
			r.Post("/academic-years/{yearID}/complete", h.completeYear)
			r.Get("/academic-years/{yearID}/lessons", h.listYearLessons)
			r.Get("/academic-years/{yearID}/pupils/{pupilID}/bricks", h.pupilBricks)

			r.Post("/lessons", h.createLesson)
			r.Get("/lessons/{lessonID}/homework-checks", h.listHomework)
			r.Post("/lessons/{lessonID}/homework-checks", h.recordHomework)

			r.Post("/bricks", h.issueBricks)

			r.Post("/assignments", h.assign)
			r.Delete("/assignments/{userID}/{gradeID}", h.unassign)
			r.Get("/teachers/{userID}/assignments", h.teacherAssignments)
		})
	})

	return r
}

// NewH2CHandler wraps the router with an h2c server for HTTP/2 over cleartext.
func NewH2CHandler(opts RouterOptions) http.Handler {
	return h2c.NewHandler(NewRouter(opts), &http2.Server{})
}
