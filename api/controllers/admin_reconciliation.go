package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/campuskit/schoolstock-backend/api/responses"
	"github.com/campuskit/schoolstock-backend/api/validators"
	"github.com/campuskit/schoolstock-backend/internal/stock"
	"github.com/campuskit/schoolstock-backend/pkg/logger"
)

// AdminListReconciliationTasks returns the unresolved operator queue.
func AdminListReconciliationTasks(engine stock.Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		tasks, err := engine.ListTasks(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toTaskViews(tasks))
	}
}

// AdminRetryReconciliationTask replays the item write a queued task stands
// in for, once.
func AdminRetryReconciliationTask(engine stock.Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathUUID(chi.URLParam(r, "taskId"), "taskId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		task, err := engine.RetryTask(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toTaskView(*task))
	}
}
