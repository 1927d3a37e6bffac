package routes

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/briangreenhill/finboard/internal/finance"
	"github.com/briangreenhill/finboard/internal/ledger"
	"github.com/briangreenhill/finboard/internal/search"
	"github.com/briangreenhill/finboard/internal/workspace"
)

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ws, err := s.workspace(r)
	if err != nil {
		s.readFailed(w, r, err)
		return
	}
	d, err := ws.Service.Dashboard(r.Context())
	if err != nil {
		s.readFailed(w, r, err)
		return
	}
	s.render(w, r, http.StatusOK, "dashboard", s.page(r, "Dashboard", map[string]any{
		"Dashboard": d,
		"Live":      ws.Live(),
	}))
}

func formInput(r *http.Request) ledger.TransactionInput {
	return ledger.TransactionInput{
		Amount:      strings.TrimSpace(r.PostForm.Get("amount")),
		Description: strings.TrimSpace(r.PostForm.Get("description")),
		Category:    strings.TrimSpace(r.PostForm.Get("category")),
		Type:        strings.TrimSpace(r.PostForm.Get("type")),
		Date:        strings.TrimSpace(r.PostForm.Get("date")),
	}
}

// fieldErrors is the inline message per form field for a validation failure
func fieldErrors(err error) (map[string]string, bool) {
	var verr *ledger.ValidationError
	if !errors.As(err, &verr) {
		return nil, false
	}
	return verr.Fields, true
}

func (s *Server) categories(r *http.Request, ws *workspace.Workspace) []ledger.Category {
	cats, err := ws.Service.Categories(r.Context())
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("categories unavailable")
		return nil
	}
	return cats.Data
}

// backTo keeps redirects on the transactions page, with its query
func backTo(raw string) string {
	if !strings.HasPrefix(raw, "/transactions") || strings.HasPrefix(raw, "//") {
		return "/transactions"
	}
	return raw
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	ws, err := s.workspace(r)
	if err != nil {
		s.readFailed(w, r, err)
		return
	}
	form := ledger.TransactionInput{Type: string(ledger.Debit), Date: ws.Service.Today().Format("2006-01-02")}
	s.transactionsPage(w, r, ws, http.StatusOK, form, map[string]string{})
}

func (s *Server) transactionsPage(w http.ResponseWriter, r *http.Request, ws *workspace.Workspace, status int, form ledger.TransactionInput, errs map[string]string) {
	offset := intParam(r, "offset", 0)
	limit := intParam(r, "limit", s.PageSize)
	q := r.URL.Query().Get("q")

	var (
		listing finance.Listing
		err     error
	)
	if search.Blank(q) {
		listing, err = ws.Service.Transactions(r.Context(), offset, limit)
	} else {
		listing, err = ws.Service.Search(r.Context(), q, offset, limit)
	}
	if err != nil {
		s.readFailed(w, r, err)
		return
	}

	s.render(w, r, status, "transactions", s.page(r, "Transactions", map[string]any{
		"Listing":    listing,
		"Query":      q,
		"Back":       r.URL.RequestURI(),
		"Categories": s.categories(r, ws),
		"Form":       form,
		"Errors":     errs,
		"Live":       ws.Live(),
	}))
}

func (s *Server) handleAddTransaction(w http.ResponseWriter, r *http.Request) {
	ws, err := s.workspace(r)
	if err != nil {
		s.readFailed(w, r, err)
		return
	}
	_ = r.ParseForm()
	in := formInput(r)

	_, err = ws.Service.AddTransaction(r.Context(), in)
	if errs, ok := fieldErrors(err); ok {
		r.URL.RawQuery = ""
		s.transactionsPage(w, r, ws, http.StatusUnprocessableEntity, in, errs)
		return
	}
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("add transaction")
		s.flash(r.Context(), "Could not add the transaction. Please try again.")
	} else {
		s.flash(r.Context(), "Transaction added.")
	}
	http.Redirect(w, r, "/transactions", http.StatusSeeOther)
}

func (s *Server) handleUndoTransaction(w http.ResponseWriter, r *http.Request) {
	ws, err := s.workspace(r)
	if err != nil {
		s.readFailed(w, r, err)
		return
	}
	_ = r.ParseForm()
	id := chi.URLParam(r, "id")

	if err := ws.Service.UndoTransaction(r.Context(), id); err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("transaction_id", id).Msg("undo transaction")
		s.flash(r.Context(), "Could not undo the transaction. Nothing was changed.")
	} else {
		s.flash(r.Context(), "Transaction undone.")
	}
	http.Redirect(w, r, backTo(r.PostForm.Get("back")), http.StatusSeeOther)
}

func (s *Server) handleEditTransaction(w http.ResponseWriter, r *http.Request) {
	ws, err := s.workspace(r)
	if err != nil {
		s.readFailed(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	t, ok := ws.Service.Find(id)
	if !ok {
		s.render(w, r, http.StatusNotFound, "error", s.page(r, "Not found", map[string]any{
			"Message": "That transaction is not on any page you have open. Go back to the list and try again.",
		}))
		return
	}
	form := ledger.TransactionInput{
		Amount:      t.Amount.String(),
		Description: t.Description,
		Category:    t.Category,
		Type:        string(t.Type),
		Date:        t.Date.Format("2006-01-02"),
	}
	s.editPage(w, r, ws, http.StatusOK, id, form, map[string]string{})
}

func (s *Server) editPage(w http.ResponseWriter, r *http.Request, ws *workspace.Workspace, status int, id string, form ledger.TransactionInput, errs map[string]string) {
	s.render(w, r, status, "edit", s.page(r, "Edit transaction", map[string]any{
		"ID":         id,
		"Categories": s.categories(r, ws),
		"Form":       form,
		"Errors":     errs,
		"Live":       ws.Live(),
	}))
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	ws, err := s.workspace(r)
	if err != nil {
		s.readFailed(w, r, err)
		return
	}
	_ = r.ParseForm()
	id := chi.URLParam(r, "id")
	in := formInput(r)

	err = ws.Service.UpdateTransaction(r.Context(), id, in)
	if errs, ok := fieldErrors(err); ok {
		s.editPage(w, r, ws, http.StatusUnprocessableEntity, id, in, errs)
		return
	}
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("transaction_id", id).Msg("update transaction")
		s.flash(r.Context(), "Could not save the transaction. Your change was reverted.")
	} else {
		s.flash(r.Context(), "Transaction updated.")
	}
	http.Redirect(w, r, "/transactions", http.StatusSeeOther)
}
