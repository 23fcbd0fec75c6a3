package controllers

import (
	"net/http"

	"github.com/campuskit/schoolstock-backend/api/responses"
	dashboardsvc "github.com/campuskit/schoolstock-backend/internal/dashboard"
	"github.com/campuskit/schoolstock-backend/pkg/logger"
)

// DashboardSummary returns the point-in-time operations snapshot.
func DashboardSummary(svc dashboardsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := svc.Summary(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}
