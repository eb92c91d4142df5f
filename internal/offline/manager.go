// Package offline coordinates the agent's local cache with the server:
// optimistic local writes, a replay queue for mutations made while
// unreachable, and a single-flight drain-then-pull sync cycle.
package offline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"kakebo/internal/core"
	"kakebo/internal/localstore"
)

type Event string

const (
	EventStart    Event = "sync-start"
	EventComplete Event = "sync-complete"
	EventError    Event = "sync-error"
)

// Remote is the server as seen from the agent.
type Remote interface {
	ListCategories(ctx context.Context) ([]core.Category, error)
	ListTransactions(ctx context.Context) ([]core.Transaction, error)
	Execute(ctx context.Context, op localstore.PendingOperation) error
}

// Listener observes sync lifecycle events. err is non-nil only for
// EventError.
type Listener func(event Event, err error)

// Manager owns the connectivity and sync state. All mutations made
// through it land in the local store first; the server is reconciled by
// Sync. At most one sync cycle runs at a time and overlapping triggers
// collapse into no-ops.
type Manager struct {
	store  *localstore.Store
	remote Remote

	mu        sync.Mutex
	online    bool
	syncing   bool
	listeners []Listener
}

func NewManager(store *localstore.Store, remote Remote) *Manager {
	return &Manager{store: store, remote: remote}
}

// OnSync registers a lifecycle listener. Listeners run synchronously on
// the syncing goroutine and must not block.
func (m *Manager) OnSync(fn Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

func (m *Manager) notify(event Event, err error) {
	m.mu.Lock()
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(event, err)
	}
}

func (m *Manager) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline records the connectivity state. An offline-to-online
// transition triggers a sync cycle.
func (m *Manager) SetOnline(ctx context.Context, online bool) {
	m.mu.Lock()
	wasOnline := m.online
	m.online = online
	m.mu.Unlock()

	if online && !wasOnline {
		slog.InfoContext(ctx, "Connection restored, starting sync")
		m.Sync(ctx)
	}
	if !online && wasOnline {
		slog.InfoContext(ctx, "Connection lost, queueing mutations locally")
	}
}

// RequestSync triggers a sync cycle if one is not already running and
// the agent is online. It never fails the caller; sync errors surface
// through listeners and logs.
func (m *Manager) RequestSync(ctx context.Context) {
	m.Sync(ctx)
}

// QueueOperation applies a mutation optimistically to the local store,
// enqueues it for replay, and triggers a sync when online. Created
// records get a negative temporary id until the next pull replaces them
// with server state.
func (m *Manager) QueueOperation(ctx context.Context, opType, entity string, entityID core.ID, data json.RawMessage) (localstore.PendingOperation, error) {
	if err := m.applyLocal(ctx, opType, entity, &entityID, data); err != nil {
		return localstore.PendingOperation{}, err
	}

	op, err := m.store.EnqueuePendingOperation(ctx, localstore.PendingOperation{
		Type:     opType,
		Entity:   entity,
		EntityID: entityID,
		Data:     data,
	})
	if err != nil {
		return localstore.PendingOperation{}, err
	}
	slog.InfoContext(ctx, "Queued operation",
		"id", op.ID, "type", op.Type, "entity", op.Entity)

	if m.Online() {
		m.Sync(ctx)
	}
	return op, nil
}

func (m *Manager) applyLocal(ctx context.Context, opType, entity string, entityID *core.ID, data json.RawMessage) error {
	switch opType {
	case localstore.OpCreate:
		tempID, err := m.store.NextTempID(ctx)
		if err != nil {
			return err
		}
		*entityID = tempID
		return m.store.Put(ctx, entity, localstore.Record{
			ID:         tempID,
			Data:       data,
			SyncStatus: localstore.StatusPending,
		})
	case localstore.OpUpdate:
		return m.store.Put(ctx, entity, localstore.Record{
			ID:         *entityID,
			Data:       data,
			SyncStatus: localstore.StatusPending,
		})
	case localstore.OpDelete:
		return m.store.Delete(ctx, entity, *entityID)
	default:
		return fmt.Errorf("unknown operation type %q", opType)
	}
}

// Sync runs one drain-then-pull cycle. It is a no-op while offline or
// while another cycle is in flight.
func (m *Manager) Sync(ctx context.Context) {
	m.mu.Lock()
	if m.syncing || !m.online {
		m.mu.Unlock()
		return
	}
	m.syncing = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.syncing = false
		m.mu.Unlock()
	}()

	m.notify(EventStart, nil)
	slog.InfoContext(ctx, "Sync started")

	m.drain(ctx)

	if err := m.pull(ctx); err != nil {
		slog.ErrorContext(ctx, "Sync failed", "error", err)
		m.notify(EventError, err)
		return
	}

	if err := m.store.SetMetadata(ctx, localstore.MetaLastSyncTime,
		time.Now().UTC().Format(time.RFC3339)); err != nil {
		slog.WarnContext(ctx, "Failed to record sync time", "error", err)
	}

	slog.InfoContext(ctx, "Sync completed")
	m.notify(EventComplete, nil)
}

// drain replays queued operations oldest first. A failed operation is
// logged and left in the queue; the drain moves on so one bad entry
// cannot wedge the rest.
func (m *Manager) drain(ctx context.Context) {
	ops, err := m.store.ListPendingOperations(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to list pending operations", "error", err)
		return
	}
	if len(ops) == 0 {
		return
	}
	slog.InfoContext(ctx, "Replaying pending operations", "count", len(ops))

	for _, op := range ops {
		if err := m.remote.Execute(ctx, op); err != nil {
			slog.WarnContext(ctx, "Operation replay failed, keeping in queue",
				"id", op.ID, "type", op.Type, "entity", op.Entity, "error", err)
			continue
		}
		if err := m.store.DequeuePendingOperation(ctx, op.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to dequeue operation",
				"id", op.ID, "error", err)
		}
	}
}

// pull replaces the local collections with server state. Any fetch or
// replace failure aborts the pull and leaves the local data as-is.
func (m *Manager) pull(ctx context.Context) error {
	cats, err := m.remote.ListCategories(ctx)
	if err != nil {
		return fmt.Errorf("fetch categories: %w", err)
	}
	catRecords := make([]localstore.Record, 0, len(cats))
	for _, c := range cats {
		data, err := json.Marshal(categoryRecord(c))
		if err != nil {
			return fmt.Errorf("encode category %d: %w", c.ID, err)
		}
		catRecords = append(catRecords, localstore.Record{
			ID: c.ID, Data: data, SyncStatus: localstore.StatusSynced,
		})
	}
	if _, err := m.store.ReplaceCollection(ctx, localstore.CollectionCategories, catRecords); err != nil {
		return fmt.Errorf("replace categories: %w", err)
	}

	txs, err := m.remote.ListTransactions(ctx)
	if err != nil {
		return fmt.Errorf("fetch expenses: %w", err)
	}
	txRecords := make([]localstore.Record, 0, len(txs))
	for _, t := range txs {
		data, err := json.Marshal(transactionRecord(t))
		if err != nil {
			return fmt.Errorf("encode expense %d: %w", t.ID, err)
		}
		txRecords = append(txRecords, localstore.Record{
			ID: t.ID, Data: data, SyncStatus: localstore.StatusSynced,
		})
	}
	pending, err := m.store.ReplaceCollection(ctx, localstore.CollectionExpenses, txRecords)
	if err != nil {
		return fmt.Errorf("replace expenses: %w", err)
	}
	if len(pending) > 0 {
		// Pending records are superseded by the replace; their queued
		// operations (if any) replay on the next drain.
		slog.InfoContext(ctx, "Discarded locally pending records on pull",
			"count", len(pending))
	}
	return nil
}

// Cached record shapes, matching the server wire format.
type (
	categoryRecordJSON struct {
		ID        core.ID   `json:"id"`
		Name      string    `json:"name"`
		Color     string    `json:"color"`
		Icon      string    `json:"icon"`
		CreatedAt time.Time `json:"createdAt"`
	}

	transactionRecordJSON struct {
		ID          core.ID   `json:"id"`
		Description string    `json:"description,omitempty"`
		Amount      float64   `json:"amount"`
		CategoryID  core.ID   `json:"categoryId"`
		Date        time.Time `json:"date"`
		Type        string    `json:"type"`
		PersonName  string    `json:"personName,omitempty"`
		CreatedAt   time.Time `json:"createdAt"`
	}
)

func categoryRecord(c core.Category) categoryRecordJSON {
	return categoryRecordJSON{
		ID: c.ID, Name: c.Name, Color: c.Color, Icon: c.Icon, CreatedAt: c.CreatedAt,
	}
}

func transactionRecord(t core.Transaction) transactionRecordJSON {
	return transactionRecordJSON{
		ID:          t.ID,
		Description: t.Description,
		Amount:      t.Amount.Float(),
		CategoryID:  t.CategoryID,
		Date:        t.Date,
		Type:        string(t.Type),
		PersonName:  t.PersonName,
		CreatedAt:   t.CreatedAt,
	}
}
