package dispatch

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"water-dispatch-backend/config"
)

// ErrNotMounted is returned for users without a mounted monitor.
var ErrNotMounted = errors.New("dispatch monitor not mounted")

// Hub owns the mounted monitors, one per user.
type Hub struct {
	ctx  context.Context
	cfg  config.DispatchConfig
	deps Deps
	log  *zap.Logger

	mu       sync.Mutex
	monitors map[string]*Monitor
}

// NewHub creates a hub. ctx bounds the lifetime of every poll loop it starts.
func NewHub(ctx context.Context, cfg config.DispatchConfig, deps Deps) *Hub {
	deps = deps.withDefaults()
	// *rand.Rand is not safe for concurrent use; every monitor seeds its own.
	deps.Rand = nil
	return &Hub{
		ctx:      ctx,
		cfg:      cfg,
		deps:     deps,
		log:      deps.Log,
		monitors: make(map[string]*Monitor),
	}
}

// Mount returns the requester's monitor, creating it, restoring its state and
// starting its poll loop on first use.
func (h *Hub) Mount(ctx context.Context, requester Requester) *Monitor {
	h.mu.Lock()
	defer h.mu.Unlock()

	if m, ok := h.monitors[requester.ID]; ok {
		return m
	}

	m := NewMonitor(h.cfg, requester, h.deps)
	if err := m.Load(ctx); err != nil {
		h.log.Warn("could not restore monitor state, starting from defaults",
			zap.String("user", requester.ID), zap.Error(err))
	}
	m.Start(h.ctx)
	h.monitors[requester.ID] = m
	mountedMonitors.Set(float64(len(h.monitors)))
	h.log.Info("dispatch monitor mounted", zap.String("user", requester.ID))
	return m
}

// Get returns a mounted monitor.
func (h *Hub) Get(userID string) (*Monitor, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.monitors[userID]
	if !ok {
		return nil, ErrNotMounted
	}
	return m, nil
}

// Unmount stops the user's poll loop and saves its state. The hub stays
// locked until the save completes so a concurrent Mount loads the saved state.
func (h *Hub) Unmount(ctx context.Context, userID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	m, ok := h.monitors[userID]
	if !ok {
		return ErrNotMounted
	}
	delete(h.monitors, userID)
	mountedMonitors.Set(float64(len(h.monitors)))

	m.Stop()
	if err := m.Save(ctx); err != nil {
		return err
	}
	h.log.Info("dispatch monitor unmounted", zap.String("user", userID))
	return nil
}

// Mounted returns the number of mounted monitors.
func (h *Hub) Mounted() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.monitors)
}

// Close unmounts every monitor.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	ids := make([]string, 0, len(h.monitors))
	for id := range h.monitors {
		ids = append(ids, id)
	}
	h.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := h.Unmount(ctx, id); err != nil && !errors.Is(err, ErrNotMounted) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
