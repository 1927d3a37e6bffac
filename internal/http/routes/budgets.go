package routes

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/hlog"

	"github.com/briangreenhill/finboard/internal/budget"
	appmw "github.com/briangreenhill/finboard/internal/http/middleware"
	"github.com/briangreenhill/finboard/internal/ledger"
)

func (s *Server) handleBudgets(w http.ResponseWriter, r *http.Request) {
	ws, err := s.workspace(r)
	if err != nil {
		s.readFailed(w, r, err)
		return
	}
	limits, err := s.Budgets.List(r.Context(), ws.UserID)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("list budgets")
		s.render(w, r, http.StatusInternalServerError, "error", s.page(r, "Something went wrong", map[string]any{
			"Message": "Could not load your budgets.",
		}))
		return
	}
	report, err := ws.Service.Budgets(r.Context(), limits)
	if err != nil {
		s.readFailed(w, r, err)
		return
	}
	s.render(w, r, http.StatusOK, "budgets", s.page(r, "Budgets", map[string]any{
		"Report": report,
		"Live":   ws.Live(),
	}))
}

func (s *Server) handleSetBudget(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	category := strings.TrimSpace(r.PostForm.Get("category"))

	limit, err := budget.ParseLimit(r.PostForm.Get("limit"))
	if err == nil {
		err = s.Budgets.Put(r.Context(), appmw.UserID(r.Context()), ledger.Budget{Category: category, Limit: limit})
	}
	switch {
	case errors.Is(err, budget.ErrInvalid):
		s.flash(r.Context(), "Limits must be zero or more, like 250 or 99.50.")
	case err != nil:
		hlog.FromRequest(r).Error().Err(err).Str("category", category).Msg("save budget")
		s.flash(r.Context(), "Could not save the budget.")
	default:
		s.flash(r.Context(), "Budget for "+category+" saved.")
	}
	http.Redirect(w, r, "/budgets", http.StatusSeeOther)
}
