// Package workspace owns the per-identity state of the dashboard: one cache
// store, query client, finance service and live channel per signed-in user.
// Nothing is shared across identities.
package workspace

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/briangreenhill/finboard/internal/cache"
	"github.com/briangreenhill/finboard/internal/finance"
	"github.com/briangreenhill/finboard/internal/live"
	"github.com/briangreenhill/finboard/internal/query"
)

var ErrNoIdentity = errors.New("workspace needs a user id")

// Workspace is everything kept for one user
type Workspace struct {
	UserID  string
	Store   *cache.Store
	Client  *query.Client
	Service *finance.Service

	channel  *live.Channel
	lastUsed time.Time
}

// Live reports whether the workspace has a live channel that is connected
func (w *Workspace) Live() bool {
	return w.channel != nil && w.channel.Connected()
}

func (w *Workspace) close() {
	if w.channel != nil {
		w.channel.Close()
	}
	w.Client.Close()
	w.Store.Reset()
}

type Manager struct {
	gw      finance.Gateway
	liveURL string
	retry   time.Duration
	svcOpts []finance.Option
	logger  zerolog.Logger
	now     func() time.Time

	mu     sync.Mutex
	spaces map[string]*Workspace
}

type Option func(*Manager)

// WithLiveURL enables a live channel per workspace
func WithLiveURL(u string) Option {
	return func(m *Manager) { m.liveURL = u }
}

func WithRetryDelay(d time.Duration) Option {
	return func(m *Manager) { m.retry = d }
}

// WithServiceOptions are passed to every finance.Service the manager creates
func WithServiceOptions(opts ...finance.Option) Option {
	return func(m *Manager) { m.svcOpts = append(m.svcOpts, opts...) }
}

func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(gw finance.Gateway, opts ...Option) *Manager {
	m := &Manager{
		gw:     gw,
		retry:  live.DefaultRetryDelay,
		logger: zerolog.Nop(),
		now:    time.Now,
		spaces: make(map[string]*Workspace),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Get returns the user's workspace, opening it on first use
func (m *Manager) Get(userID string) (*Workspace, error) {
	if userID == "" {
		return nil, ErrNoIdentity
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.spaces[userID]; ok {
		w.lastUsed = m.now()
		return w, nil
	}

	w := m.open(userID)
	m.spaces[userID] = w
	return w, nil
}

func (m *Manager) open(userID string) *Workspace {
	logger := m.logger.With().Str("user_id", userID).Logger()
	store := cache.New()
	client := query.New(store, query.WithLogger(logger))
	opts := append([]finance.Option{finance.WithLogger(logger)}, m.svcOpts...)
	w := &Workspace{
		UserID:   userID,
		Store:    store,
		Client:   client,
		Service:  finance.New(userID, m.gw, client, opts...),
		lastUsed: m.now(),
	}

	if m.liveURL != "" {
		reg := live.NewRegistry()
		w.Service.Register(reg)
		ch, err := live.Open(m.liveURL, userID, reg, live.WithRetryDelay(m.retry), live.WithLogger(logger))
		if err != nil {
			logger.Warn().Err(err).Msg("workspace opened without live updates")
		} else {
			w.channel = ch
		}
	}

	logger.Info().Msg("workspace opened")
	return w
}

// Drop closes the user's workspace, if any. The next Get starts empty.
func (m *Manager) Drop(userID string) {
	m.mu.Lock()
	w, ok := m.spaces[userID]
	delete(m.spaces, userID)
	m.mu.Unlock()

	if ok {
		w.close()
		m.logger.Info().Str("user_id", userID).Msg("workspace closed")
	}
}

// Sweep closes workspaces unused for longer than idle and returns how many
func (m *Manager) Sweep(idle time.Duration) int {
	cutoff := m.now().Add(-idle)

	m.mu.Lock()
	var stale []*Workspace
	for id, w := range m.spaces {
		if w.lastUsed.Before(cutoff) {
			stale = append(stale, w)
			delete(m.spaces, id)
		}
	}
	m.mu.Unlock()

	for _, w := range stale {
		w.close()
		m.logger.Info().Str("user_id", w.UserID).Msg("idle workspace closed")
	}
	return len(stale)
}

// Run sweeps every interval until ctx is done
func (m *Manager) Run(ctx context.Context, every, idle time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Sweep(idle)
		}
	}
}

// Len is the number of open workspaces
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.spaces)
}

// Close closes every workspace
func (m *Manager) Close() {
	m.mu.Lock()
	spaces := m.spaces
	m.spaces = make(map[string]*Workspace)
	m.mu.Unlock()

	for _, w := range spaces {
		w.close()
	}
}
