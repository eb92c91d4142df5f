package localstore

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"kakebo/internal/core"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "agent.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func rec(id core.ID, data, status string) Record {
	return Record{ID: id, Data: json.RawMessage(data), SyncStatus: status}
}

func TestRecordRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, CollectionCategories, rec(1, `{"name":"Food"}`, StatusSynced)); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok, err := s.GetByID(ctx, CollectionCategories, 1)
	if err != nil || !ok {
		t.Fatalf("get expected hit, got ok=%v err=%v", ok, err)
	}
	if string(got.Data) != `{"name":"Food"}` || got.SyncStatus != StatusSynced {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	// Upsert overwrites.
	if err := s.Put(ctx, CollectionCategories, rec(1, `{"name":"Groceries"}`, StatusPending)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, _, _ = s.GetByID(ctx, CollectionCategories, 1)
	if string(got.Data) != `{"name":"Groceries"}` || got.SyncStatus != StatusPending {
		t.Fatalf("upsert mismatch: %+v", got)
	}

	if err := s.Delete(ctx, CollectionCategories, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := s.GetByID(ctx, CollectionCategories, 1); ok {
		t.Fatal("expected record gone")
	}
}

func TestGetMissingIsNotAnError(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := s.GetByID(context.Background(), CollectionExpenses, 42)
	if err != nil {
		t.Fatalf("missing record must not error: %v", err)
	}
	if ok {
		t.Fatal("expected absent")
	}
}

func TestCollectionsAreIsolated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Put(ctx, CollectionCategories, rec(1, `{"kind":"cat"}`, StatusSynced))
	s.Put(ctx, CollectionExpenses, rec(1, `{"kind":"exp"}`, StatusSynced))

	got, ok, _ := s.GetByID(ctx, CollectionExpenses, 1)
	if !ok || string(got.Data) != `{"kind":"exp"}` {
		t.Fatalf("same id in another collection must not collide: %+v", got)
	}

	if err := s.Clear(ctx, CollectionExpenses); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok, _ := s.GetByID(ctx, CollectionCategories, 1); !ok {
		t.Fatal("clearing one collection must not touch the other")
	}
}

func TestReplaceCollectionReturnsPendingSnapshot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Put(ctx, CollectionExpenses, rec(1, `{"a":1}`, StatusSynced))
	s.Put(ctx, CollectionExpenses, rec(-1, `{"a":2}`, StatusPending))
	s.Put(ctx, CollectionExpenses, rec(-2, `{"a":3}`, StatusPending))

	pending, err := s.ReplaceCollection(ctx, CollectionExpenses,
		[]Record{rec(10, `{"a":10}`, StatusSynced), rec(11, `{"a":11}`, StatusSynced)})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending in snapshot, got %d", len(pending))
	}

	all, err := s.GetAll(ctx, CollectionExpenses)
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("collection must hold exactly the server records, got %d", len(all))
	}
	for _, r := range all {
		if r.SyncStatus != StatusSynced {
			t.Fatalf("replaced records must be synced: %+v", r)
		}
	}
}

func TestReplaceCategoriesHasNoSnapshot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.Put(ctx, CollectionCategories, rec(1, `{"a":1}`, StatusPending))

	pending, err := s.ReplaceCollection(ctx, CollectionCategories,
		[]Record{rec(2, `{"a":2}`, StatusSynced)})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("categories replace must not snapshot, got %d", len(pending))
	}
}

func TestPendingOperationsFIFO(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.EnqueuePendingOperation(ctx, PendingOperation{
		Type: OpCreate, Entity: CollectionExpenses, Data: json.RawMessage(`{"amount":1}`),
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	second, _ := s.EnqueuePendingOperation(ctx, PendingOperation{
		Type: OpUpdate, Entity: CollectionExpenses, EntityID: 5, Data: json.RawMessage(`{"amount":2}`),
	})
	third, _ := s.EnqueuePendingOperation(ctx, PendingOperation{
		Type: OpDelete, Entity: CollectionCategories, EntityID: 9,
	})

	if !(first.ID < second.ID && second.ID < third.ID) {
		t.Fatalf("ids must ascend: %d %d %d", first.ID, second.ID, third.ID)
	}

	ops, err := s.ListPendingOperations(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ops) != 3 {
		t.Fatalf("expected 3 ops, got %d", len(ops))
	}
	if ops[0].ID != first.ID || ops[2].ID != third.ID {
		t.Fatal("expected FIFO order")
	}
	if ops[1].Type != OpUpdate || ops[1].EntityID != 5 || string(ops[1].Data) != `{"amount":2}` {
		t.Fatalf("op fields lost: %+v", ops[1])
	}

	// Dequeue the middle one; the others keep their order.
	if err := s.DequeuePendingOperation(ctx, second.ID); err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	ops, _ = s.ListPendingOperations(ctx)
	if len(ops) != 2 || ops[0].ID != first.ID || ops[1].ID != third.ID {
		t.Fatalf("unexpected queue after dequeue: %+v", ops)
	}
}

func TestNextTempIDIsNegativeAndUnique(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seen := make(map[core.ID]bool)
	for i := 0; i < 5; i++ {
		id, err := s.NextTempID(ctx)
		if err != nil {
			t.Fatalf("next temp id: %v", err)
		}
		if id >= 0 {
			t.Fatalf("temp id must be negative, got %d", id)
		}
		if seen[id] {
			t.Fatalf("temp id %d handed out twice", id)
		}
		seen[id] = true
	}
}

func TestMetadata(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.GetMetadata(ctx, MetaLastSyncTime); err != nil || ok {
		t.Fatalf("expected absent metadata, got ok=%v err=%v", ok, err)
	}
	if err := s.SetMetadata(ctx, MetaLastSyncTime, "2025-03-15T10:00:00Z"); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok, err := s.GetMetadata(ctx, MetaLastSyncTime)
	if err != nil || !ok || v != "2025-03-15T10:00:00Z" {
		t.Fatalf("get expected stored value, got %q ok=%v err=%v", v, ok, err)
	}
	// Overwrite.
	s.SetMetadata(ctx, MetaLastSyncTime, "2025-03-16T10:00:00Z")
	v, _, _ = s.GetMetadata(ctx, MetaLastSyncTime)
	if v != "2025-03-16T10:00:00Z" {
		t.Fatalf("expected overwritten value, got %q", v)
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s.Put(ctx, CollectionExpenses, rec(1, `{"a":1}`, StatusSynced))
	s.EnqueuePendingOperation(ctx, PendingOperation{Type: OpCreate, Entity: CollectionExpenses, Data: json.RawMessage(`{}`)})
	s.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	if _, ok, _ := s2.GetByID(ctx, CollectionExpenses, 1); !ok {
		t.Fatal("record must survive reopen")
	}
	ops, _ := s2.ListPendingOperations(ctx)
	if len(ops) != 1 {
		t.Fatalf("queue must survive reopen, got %d ops", len(ops))
	}
}
