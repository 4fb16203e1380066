package app

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/hazixroland-ai/tiktoklive/internal/adapter/metrics"
	"github.com/hazixroland-ai/tiktoklive/internal/bottle"
	"github.com/hazixroland-ai/tiktoklive/internal/broadcast"
	"github.com/hazixroland-ai/tiktoklive/internal/domain"
	"github.com/hazixroland-ai/tiktoklive/internal/live"
	"github.com/jonboulle/clockwork"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

const streamerRemovedReason = "Streamer removed"

// Hub is the subset of broadcast.Hub the registry depends on.
type Hub interface {
	Publish(streamerID string, msg any) error
	Subscribe(streamerID string, conn broadcast.Conn, snapshot func() any) (string, error)
	Unsubscribe(streamerID string, conn broadcast.Conn)
	ClientCount(streamerID string) int
	Disconnect(streamerID, reason string)
}

// Entry pairs a streamer's bottle with the manager that feeds it.
type Entry struct {
	Store   *bottle.Store
	Manager *live.Manager
}

// OverlayMeta is echoed to overlay clients in the hello message.
type OverlayMeta struct {
	DisplayName string
	UniqueID    string
}

type RuntimeStatus struct {
	StreamerID string
	State      live.State
	Bottle     domain.BottleState
	Clients    int
}

// RuntimeSummary counts entries by connection state.
type RuntimeSummary struct {
	Streamers int
	Connected int
	Retrying  int
}

type RegistryConfig struct {
	DefaultCapacity int
	RetryPolicy     live.RetryPolicy
	OpenTimeout     time.Duration
}

// Registry maps streamer IDs to their runtime entry. Entries are created on
// first use and live until Remove or Close.
type Registry struct {
	mu              sync.RWMutex
	entries         map[string]*Entry
	hub             Hub
	clock           clockwork.Clock
	deps            live.Deps
	defaultCapacity int
	closed          bool
}

func NewRegistry(source domain.WebcastSource, hub Hub, clock clockwork.Clock, m *metrics.LiveMetrics, cfg RegistryConfig) *Registry {
	return &Registry{
		entries: make(map[string]*Entry),
		hub:     hub,
		clock:   clock,
		deps: live.Deps{
			Source:      source,
			Publisher:   hub,
			Clock:       clock,
			Policy:      cfg.RetryPolicy,
			Metrics:     m,
			OpenTimeout: cfg.OpenTimeout,
		},
		defaultCapacity: cfg.DefaultCapacity,
	}
}

// Entry returns the entry for id, creating it if needed. A positive capacity
// updates the bottle capacity in place.
func (r *Registry) Entry(id string, capacity int) *Entry {
	e := r.lookup(id)
	if e == nil {
		e = r.create(id, capacity)
	}
	e.Store.SetCapacity(capacity)
	return e
}

func (r *Registry) lookup(id string) *Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[id]
}

func (r *Registry) create(id string, capacity int) *Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[id]; ok {
		return e
	}

	if capacity <= 0 {
		capacity = r.defaultCapacity
	}
	store := bottle.NewStore(capacity, r.clock)
	e := &Entry{Store: store, Manager: live.NewManager(id, store, r.deps)}
	if r.closed {
		e.Manager.Close()
	}
	r.entries[id] = e

	slog.Debug("Runtime entry created", "streamer_id", id, "capacity", capacity)
	return e
}

func (r *Registry) Start(ctx context.Context, id string, cfg domain.BroadcasterConfig) (live.StartResult, error) {
	if err := cfg.Validate(); err != nil {
		return 0, err
	}
	return r.Entry(id, cfg.Capacity).Manager.Start(ctx, cfg)
}

// Stop is a no-op for streamers that were never started.
func (r *Registry) Stop(ctx context.Context, id string) error {
	e := r.lookup(id)
	if e == nil {
		return nil
	}
	return e.Manager.Stop(ctx)
}

func (r *Registry) UseAndReset(ctx context.Context, id string, capacity int) (int, domain.BottleState, error) {
	return r.Entry(id, capacity).Manager.UseAndReset(ctx)
}

// Snapshot never creates an entry; unknown streamers read as an empty,
// disconnected bottle with the default capacity.
func (r *Registry) Snapshot(id string) domain.BottleState {
	if e := r.lookup(id); e != nil {
		return e.Store.Snapshot()
	}
	return domain.BottleState{Capacity: r.defaultCapacity}
}

// Subscribe attaches an overlay client. The client's first message is a hello
// carrying the bottle as of registration.
func (r *Registry) Subscribe(id string, capacity int, conn broadcast.Conn, meta OverlayMeta) (string, error) {
	e := r.Entry(id, capacity)
	return r.hub.Subscribe(id, conn, func() any {
		return domain.NewHelloMessage(meta.DisplayName, meta.UniqueID, e.Store.Snapshot())
	})
}

func (r *Registry) Unsubscribe(id string, conn broadcast.Conn) {
	r.hub.Unsubscribe(id, conn)
}

func (r *Registry) Status(id string) RuntimeStatus {
	status := RuntimeStatus{StreamerID: id, State: live.StateIdle, Bottle: r.Snapshot(id)}
	if e := r.lookup(id); e != nil {
		status.State = e.Manager.State()
		status.Clients = r.hub.ClientCount(id)
	}
	return status
}

// Statuses lists every known entry, ordered by streamer ID.
func (r *Registry) Statuses() []RuntimeStatus {
	r.mu.RLock()
	ids := lo.Keys(r.entries)
	r.mu.RUnlock()

	slices.Sort(ids)
	return lo.Map(ids, func(id string, _ int) RuntimeStatus { return r.Status(id) })
}

func (r *Registry) Summary() RuntimeSummary {
	r.mu.RLock()
	entries := lo.Values(r.entries)
	r.mu.RUnlock()

	summary := RuntimeSummary{Streamers: len(entries)}
	for _, e := range entries {
		switch e.Manager.State() {
		case live.StateConnected:
			summary.Connected++
		case live.StateRetryPending:
			summary.Retrying++
		}
	}
	return summary
}

// Remove stops and forgets a streamer's entry and closes its overlays.
func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()

	r.hub.Disconnect(id, streamerRemovedReason)

	if !ok {
		return nil
	}
	if err := e.Manager.Stop(ctx); err != nil {
		slog.Warn("Failed to stop live manager on remove", "streamer_id", id, "error", err)
	}
	e.Manager.Close()
	return nil
}

// Close stops every live connection. Entries created afterwards are inert.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	entries := lo.Values(r.entries)
	r.mu.Unlock()

	var g errgroup.Group
	for _, e := range entries {
		g.Go(func() error {
			e.Manager.Close()
			return nil
		})
	}
	_ = g.Wait()
	slog.Info("Runtime registry closed", "entries", len(entries))
}
