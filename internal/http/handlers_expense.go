package http

import (
	"net/http"
)

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	q, err := parseExpenseQuery(r.URL.Query(), s.mustUser(r).ID, s.loc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := s.expenses.Query(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, pageOf(page, s.loc))
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := req.input(s.mustUser(r).ID, s.loc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	e, err := s.expenses.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Data(expenseOf(e, s.loc)).
		SuccessNotification("Expense " + e.Name + " saved").
		Write(w)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	e, err := s.expenses.Get(r.Context(), s.mustUser(r).ID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, expenseOf(e, s.loc))
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req expenseRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := req.input(s.mustUser(r).ID, s.loc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	e, err := s.expenses.Update(r.Context(), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().
		Data(expenseOf(e, s.loc)).
		SuccessNotification("Expense updated").
		Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.expenses.Delete(r.Context(), s.mustUser(r).ID, id); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().
		Data(map[string]int64{"id": id}).
		SuccessNotification("Expense deleted").
		Write(w)
}

func (s *Server) handleSetPaid(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req paidRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	e, err := s.expenses.SetPaid(r.Context(), s.mustUser(r).ID, id, *req.Paid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	msg := "Marked as unpaid"
	if e.IsPaid() {
		msg = "Marked as paid"
	}
	NewJSONResponse().
		Data(expenseOf(e, s.loc)).
		SuccessNotification(msg).
		Write(w)
}

// handleDuplicateExpense copies an expense onto a new schedule, with optional
// field overrides.
func (s *Server) handleDuplicateExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req duplicateRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	src, err := s.expenses.Get(r.Context(), s.mustUser(r).ID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rr, err := req.request(req.template(src), s.loc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.writeRecurring(w, r, rr)
}
