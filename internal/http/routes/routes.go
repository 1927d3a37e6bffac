package routes

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	scs "github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/shopspring/decimal"

	"github.com/briangreenhill/finboard/internal/auth"
	"github.com/briangreenhill/finboard/internal/backend"
	"github.com/briangreenhill/finboard/internal/budget"
	"github.com/briangreenhill/finboard/internal/config"
	appmw "github.com/briangreenhill/finboard/internal/http/middleware"
	"github.com/briangreenhill/finboard/internal/ledger"
	"github.com/briangreenhill/finboard/internal/workspace"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

const (
	sessionUserID = "user_id"
	sessionFlash  = "flash"
)

type Server struct {
	Router   *chi.Mux
	Sess     *scs.SessionManager
	Tmpl     *template.Template
	Auth     auth.Authenticator
	Spaces   *workspace.Manager
	Budgets  budget.Store
	PageSize int
}

type ServerOptions struct {
	Sess    *scs.SessionManager
	Tmpl    *template.Template // parsed from the embedded templates when nil
	Auth    auth.Authenticator
	Spaces  *workspace.Manager
	Budgets budget.Store
	Cfg     config.Config
	Logger  zerolog.Logger
}

// Templates parses the embedded page templates with amounts shown in currency
func Templates(currency string) (*template.Template, error) {
	return template.New("").Funcs(funcs(currency)).ParseFS(templateFS, "templates/*.tmpl")
}

func funcs(currency string) template.FuncMap {
	return template.FuncMap{
		"money": func(d decimal.Decimal) string {
			return ledger.FormatMoney(d, currency)
		},
		"signed": func(t ledger.Transaction) string {
			s := ledger.FormatMoney(t.Amount, currency)
			if t.Type == ledger.Debit {
				return "-" + s
			}
			return "+" + s
		},
		"date": func(t time.Time) string { return t.Format("2006-01-02") },
	}
}

func New(opts ServerOptions) (*Server, error) {
	tmpl := opts.Tmpl
	if tmpl == nil {
		var err error
		if tmpl, err = Templates(opts.Cfg.Currency); err != nil {
			return nil, err
		}
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(hlog.NewHandler(opts.Logger))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Dur("took", d).
			Msg("request")
	}))
	r.Use(chimw.Recoverer)

	pageSize := opts.Cfg.PageSize
	if pageSize < 1 {
		pageSize = ledger.DefaultPageSize
	}
	s := &Server{
		Router:   r,
		Sess:     opts.Sess,
		Tmpl:     tmpl,
		Auth:     opts.Auth,
		Spaces:   opts.Spaces,
		Budgets:  opts.Budgets,
		PageSize: pageSize,
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("ok")); err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("write health check response")
		}
	})

	r.Group(func(pub chi.Router) {
		pub.Use(s.sessionToContext)
		pub.Get("/login", s.handleLogin)
		pub.Post("/login", s.handleCredentials)
		pub.Post("/login/otp", s.handleOTP)
		pub.Post("/logout", s.handleLogout)
	})

	r.Group(func(pr chi.Router) {
		pr.Use(s.sessionToContext)
		pr.Use(appmw.RequireAuth)
		pr.Get("/", s.handleDashboard)
		pr.Get("/transactions", s.handleTransactions)
		pr.Post("/transactions", s.handleAddTransaction)
		pr.Get("/transactions/{id}/edit", s.handleEditTransaction)
		pr.Post("/transactions/{id}", s.handleUpdateTransaction)
		pr.Post("/transactions/{id}/undo", s.handleUndoTransaction)
		pr.Get("/budgets", s.handleBudgets)
		pr.Post("/budgets", s.handleSetBudget)
	})

	return s, nil
}

func (s *Server) sessionToContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := s.Sess.GetString(r.Context(), sessionUserID); id != "" {
			ctx := appmw.WithUserID(r.Context(), id)
			hlog.FromRequest(r).UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("user_id", id)
			})
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) workspace(r *http.Request) (*workspace.Workspace, error) {
	return s.Spaces.Get(appmw.UserID(r.Context()))
}

// page fills in what the layout needs on every page
func (s *Server) page(r *http.Request, title string, data map[string]any) map[string]any {
	if data == nil {
		data = map[string]any{}
	}
	data["Title"] = title
	data["UserID"] = appmw.UserID(r.Context())
	data["Flash"] = s.Sess.PopString(r.Context(), sessionFlash)
	return data
}

func (s *Server) flash(ctx context.Context, msg string) {
	s.Sess.Put(ctx, sessionFlash, msg)
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	var buf bytes.Buffer
	if err := s.Tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("template", name).Msg("render template failed")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// readFailed shows a failed backend read as an error page. Reloading is the
// retry.
func (s *Server) readFailed(w http.ResponseWriter, r *http.Request, err error) {
	if r.Context().Err() != nil {
		// client went away
		return
	}
	hlog.FromRequest(r).Error().Err(err).Msg("ledger read failed")

	status, msg := http.StatusBadGateway, "Could not reach the ledger. Reload the page to try again."
	switch {
	case errors.Is(err, backend.ErrMalformed):
		msg = "The ledger sent a response the dashboard does not understand."
	case backend.HasStatus(err, http.StatusUnauthorized, http.StatusForbidden):
		status, msg = http.StatusForbidden, "The ledger refused access for this account."
	}
	s.render(w, r, status, "error", s.page(r, "Something went wrong", map[string]any{"Message": msg}))
}

func intParam(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get(name)))
	if err != nil {
		return def
	}
	return v
}
