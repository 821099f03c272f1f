package http

import (
	"fmt"
	"net/http"

	"gastos/internal/core"
	"gastos/internal/log"
)

func (s *Server) handleCreateRecurrences(w http.ResponseWriter, r *http.Request) {
	var req recurrenceRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	rr, err := req.request(req.template(s.mustUser(r).ID), s.loc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.writeRecurring(w, r, rr)
}

func (s *Server) handlePreviewRecurrences(w http.ResponseWriter, r *http.Request) {
	var req recurrenceRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	rr, err := req.request(req.template(s.mustUser(r).ID), s.loc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	dates, err := s.expenses.Preview(rr)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, previewOf(dates, s.loc))
}

// writeRecurring persists rr and answers 201, or 207 when some occurrences
// failed.
func (s *Server) writeRecurring(w http.ResponseWriter, r *http.Request, rr core.RecurrenceRequest) {
	res, err := s.expenses.CreateRecurring(r.Context(), rr)
	if err != nil {
		writeError(w, r, err)
		return
	}

	b := NewJSONResponse().Data(recurringOf(res, s.loc))
	switch {
	case len(res.Failed) == 0:
		b.Status(http.StatusCreated).
			SuccessNotification(fmt.Sprintf("%d expenses created", len(res.Created)))
	default:
		log.FromContext(r.Context()).WarnContext(r.Context(), "Recurring expenses partially saved",
			log.FieldCadence, string(rr.Cadence),
			"created", len(res.Created),
			"failed", len(res.Failed))
		b.Status(http.StatusMultiStatus).
			WarningNotification(fmt.Sprintf("%d created, %d failed", len(res.Created), len(res.Failed)))
	}
	b.Write(w)
}
