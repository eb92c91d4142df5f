package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"kakebo/internal/core"
	"kakebo/internal/localstore"
)

// fakeRemote records executed operations and serves canned list data.
type fakeRemote struct {
	mu         sync.Mutex
	executed   []localstore.PendingOperation
	failOpIDs  map[int64]bool
	categories []core.Category
	txs        []core.Transaction
	listErr    error

	// onExecute, when set, runs inside Execute with the manager lock not
	// held. Used to trigger reentrant syncs.
	onExecute func()
}

func (f *fakeRemote) ListCategories(ctx context.Context) ([]core.Category, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.categories, nil
}

func (f *fakeRemote) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.txs, nil
}

func (f *fakeRemote) Execute(ctx context.Context, op localstore.PendingOperation) error {
	if f.onExecute != nil {
		f.onExecute()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOpIDs[op.ID] {
		return fmt.Errorf("server rejected op %d", op.ID)
	}
	f.executed = append(f.executed, op)
	return nil
}

func (f *fakeRemote) executedIDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]int64, 0, len(f.executed))
	for _, op := range f.executed {
		ids = append(ids, op.ID)
	}
	return ids
}

func newTestManager(t *testing.T, remote *fakeRemote) (*Manager, *localstore.Store) {
	t.Helper()
	store, err := localstore.Open(filepath.Join(t.TempDir(), "agent.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewManager(store, remote), store
}

func TestQueueOperationOffline(t *testing.T) {
	remote := &fakeRemote{}
	m, store := newTestManager(t, remote)
	ctx := context.Background()

	op, err := m.QueueOperation(ctx, localstore.OpCreate, localstore.CollectionExpenses, 0,
		json.RawMessage(`{"amount":10,"categoryId":1}`))
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if op.EntityID >= 0 {
		t.Fatalf("created record must get a negative temp id, got %d", op.EntityID)
	}

	// Optimistic local write happened.
	rec, ok, err := store.GetByID(ctx, localstore.CollectionExpenses, op.EntityID)
	if err != nil || !ok {
		t.Fatalf("expected local record, ok=%v err=%v", ok, err)
	}
	if rec.SyncStatus != localstore.StatusPending {
		t.Fatalf("local record must be pending, got %s", rec.SyncStatus)
	}

	// Nothing reached the server while offline.
	if len(remote.executedIDs()) != 0 {
		t.Fatal("offline queue must not touch the server")
	}
	ops, _ := store.ListPendingOperations(ctx)
	if len(ops) != 1 {
		t.Fatalf("expected 1 queued op, got %d", len(ops))
	}
}

func TestQueueOperationOnlineTriggersSync(t *testing.T) {
	remote := &fakeRemote{}
	m, store := newTestManager(t, remote)
	ctx := context.Background()
	m.SetOnline(ctx, true)

	if _, err := m.QueueOperation(ctx, localstore.OpDelete, localstore.CollectionExpenses, 7, nil); err != nil {
		t.Fatalf("queue: %v", err)
	}

	if len(remote.executedIDs()) != 1 {
		t.Fatalf("expected op replayed immediately, executed %v", remote.executedIDs())
	}
	ops, _ := store.ListPendingOperations(ctx)
	if len(ops) != 0 {
		t.Fatalf("expected empty queue after sync, got %d", len(ops))
	}
}

func TestGoingOnlineDrainsQueueInOrder(t *testing.T) {
	remote := &fakeRemote{}
	m, store := newTestManager(t, remote)
	ctx := context.Background()

	op1, _ := m.QueueOperation(ctx, localstore.OpCreate, localstore.CollectionExpenses, 0, json.RawMessage(`{"amount":1,"categoryId":1}`))
	op2, _ := m.QueueOperation(ctx, localstore.OpCreate, localstore.CollectionExpenses, 0, json.RawMessage(`{"amount":2,"categoryId":1}`))
	op3, _ := m.QueueOperation(ctx, localstore.OpDelete, localstore.CollectionCategories, 3, nil)

	m.SetOnline(ctx, true)

	got := remote.executedIDs()
	want := []int64{op1.ID, op2.ID, op3.ID}
	if len(got) != 3 || got[0] != want[0] || got[1] != want[1] || got[2] != want[2] {
		t.Fatalf("expected FIFO replay %v, got %v", want, got)
	}
	ops, _ := store.ListPendingOperations(ctx)
	if len(ops) != 0 {
		t.Fatalf("expected drained queue, got %d", len(ops))
	}
}

func TestFailedOperationStaysQueuedOthersProceed(t *testing.T) {
	remote := &fakeRemote{failOpIDs: make(map[int64]bool)}
	m, store := newTestManager(t, remote)
	ctx := context.Background()

	op1, _ := m.QueueOperation(ctx, localstore.OpDelete, localstore.CollectionExpenses, 1, nil)
	op2, _ := m.QueueOperation(ctx, localstore.OpDelete, localstore.CollectionExpenses, 2, nil)
	op3, _ := m.QueueOperation(ctx, localstore.OpDelete, localstore.CollectionExpenses, 3, nil)
	remote.failOpIDs[op2.ID] = true

	m.SetOnline(ctx, true)

	got := remote.executedIDs()
	if len(got) != 2 || got[0] != op1.ID || got[1] != op3.ID {
		t.Fatalf("expected ops 1 and 3 executed, got %v", got)
	}
	ops, _ := store.ListPendingOperations(ctx)
	if len(ops) != 1 || ops[0].ID != op2.ID {
		t.Fatalf("failed op must remain queued, got %+v", ops)
	}
}

func TestPullReplacesCollections(t *testing.T) {
	now := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	remote := &fakeRemote{
		categories: []core.Category{{ID: 1, Name: "Food", Color: "#fff", Icon: "🍔", CreatedAt: now}},
		txs: []core.Transaction{{
			ID: 10, Amount: core.Money{Cents: 1234}, CategoryID: 1,
			Date: now, Type: core.TypeExpense, CreatedAt: now,
		}},
	}
	m, store := newTestManager(t, remote)
	ctx := context.Background()

	// Stale local state that the pull must replace.
	store.Put(ctx, localstore.CollectionExpenses, localstore.Record{
		ID: 99, Data: json.RawMessage(`{"stale":true}`), SyncStatus: localstore.StatusSynced,
	})

	m.SetOnline(ctx, true)

	cats, _ := store.GetAll(ctx, localstore.CollectionCategories)
	if len(cats) != 1 || cats[0].ID != 1 {
		t.Fatalf("categories not pulled: %+v", cats)
	}
	txs, _ := store.GetAll(ctx, localstore.CollectionExpenses)
	if len(txs) != 1 || txs[0].ID != 10 {
		t.Fatalf("expenses not replaced: %+v", txs)
	}
	var decoded struct {
		Amount float64 `json:"amount"`
	}
	if err := json.Unmarshal(txs[0].Data, &decoded); err != nil || decoded.Amount != 12.34 {
		t.Fatalf("cached record must hold wire format, got %s (err=%v)", txs[0].Data, err)
	}

	if v, ok, _ := store.GetMetadata(ctx, localstore.MetaLastSyncTime); !ok || v == "" {
		t.Fatal("expected lastSyncTime recorded")
	}
}

func TestPullFailureAbortsAndKeepsLocalData(t *testing.T) {
	remote := &fakeRemote{listErr: errors.New("server exploded")}
	m, store := newTestManager(t, remote)
	ctx := context.Background()

	store.Put(ctx, localstore.CollectionCategories, localstore.Record{
		ID: 1, Data: json.RawMessage(`{"name":"Food"}`), SyncStatus: localstore.StatusSynced,
	})

	var events []Event
	m.OnSync(func(e Event, err error) { events = append(events, e) })

	m.SetOnline(ctx, true)

	cats, _ := store.GetAll(ctx, localstore.CollectionCategories)
	if len(cats) != 1 {
		t.Fatal("failed pull must leave local data untouched")
	}
	if _, ok, _ := store.GetMetadata(ctx, localstore.MetaLastSyncTime); ok {
		t.Fatal("failed sync must not record lastSyncTime")
	}
	if len(events) != 2 || events[0] != EventStart || events[1] != EventError {
		t.Fatalf("expected start then error events, got %v", events)
	}
}

func TestSyncWhileOfflineIsNoOp(t *testing.T) {
	remote := &fakeRemote{}
	m, _ := newTestManager(t, remote)
	ctx := context.Background()

	m.QueueOperation(ctx, localstore.OpDelete, localstore.CollectionExpenses, 1, nil)
	m.RequestSync(ctx)

	if len(remote.executedIDs()) != 0 {
		t.Fatal("sync while offline must not reach the server")
	}
}

func TestReentrantSyncIsNoOp(t *testing.T) {
	remote := &fakeRemote{}
	m, _ := newTestManager(t, remote)
	ctx := context.Background()

	var starts int
	m.OnSync(func(e Event, err error) {
		if e == EventStart {
			starts++
		}
	})

	// A trigger arriving mid-cycle must collapse into the running one.
	remote.onExecute = func() { m.RequestSync(ctx) }

	m.QueueOperation(ctx, localstore.OpDelete, localstore.CollectionExpenses, 1, nil)
	m.SetOnline(ctx, true)

	if starts != 1 {
		t.Fatalf("expected exactly 1 sync cycle, got %d", starts)
	}
}

func TestSyncEvents(t *testing.T) {
	remote := &fakeRemote{}
	m, _ := newTestManager(t, remote)
	ctx := context.Background()

	var events []Event
	m.OnSync(func(e Event, err error) { events = append(events, e) })

	m.SetOnline(ctx, true)

	if len(events) != 2 || events[0] != EventStart || events[1] != EventComplete {
		t.Fatalf("expected start then complete, got %v", events)
	}
}
