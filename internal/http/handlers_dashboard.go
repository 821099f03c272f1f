package http

import (
	"fmt"
	"net/http"
)

// handleDashboardCategories returns per-category totals for ?year= and ?month=.
// Both are optional; no filter covers every expense.
func (s *Server) handleDashboardCategories(w http.ResponseWriter, r *http.Request) {
	p, err := parsePeriod(r.URL.Query(), s.loc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	summary, err := s.dashboard.CategoryTotals(r.Context(), s.mustUser(r).ID, p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, summaryOf(summary))
}

func (s *Server) handleCategoryDetail(w http.ResponseWriter, r *http.Request) {
	category := sanitizeInput(r.PathValue("category"))
	if category == "" {
		writeError(w, r, fmt.Errorf("%w: empty category", errMalformed))
		return
	}
	year, err := queryInt(r.URL.Query(), "year")
	if err != nil {
		writeError(w, r, err)
		return
	}
	detail, err := s.dashboard.CategoryDetail(r.Context(), s.mustUser(r).ID, category, year)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, detailOf(detail))
}
