// Package api assembles the HTTP routes and middleware chain.
package api

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Diego-II/expense-tracker-api/internal/api/handlers"
	"github.com/Diego-II/expense-tracker-api/internal/api/middleware"
)

// Routes groups the handlers served by NewRouter. Events and Jobs are optional.
type Routes struct {
	Expenses *handlers.ExpensesHandler
	Events   *handlers.EventsHandler
	Jobs     *handlers.JobsHandler
}

// NewRouter registers the routes and wraps them in the middleware chain.
func NewRouter(routes Routes, log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/expenses", middleware.Method(http.MethodPost, routes.Expenses.CreateExpense))
	mux.HandleFunc("/health", middleware.Method(http.MethodGet, handlers.HealthHandler))

	if routes.Events != nil {
		mux.HandleFunc("/events/email", middleware.Method(http.MethodPost, routes.Events.EnqueueEmailEvent))
	}

	if routes.Jobs != nil {
		mux.HandleFunc("/api/jobs", middleware.Method(http.MethodGet, routes.Jobs.ListJobs))
		mux.HandleFunc("/api/jobs/", middleware.Method(http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
			// Extract job ID from path
			jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
			if jobID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
				return
			}
			routes.Jobs.GetJob(w, r, jobID)
		}))
	}

	return middleware.Recovery(log)(
		middleware.RequestID(
			middleware.Logger(log)(
				middleware.CORS(mux),
			),
		),
	)
}
