package wizard

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	_ SnapshotStore = (*MemoryStore)(nil)
	_ SnapshotStore = (*SQLiteStore)(nil)
	_ SnapshotStore = (*RedisStore)(nil)
	_ Pruner        = (*MemoryStore)(nil)
	_ Pruner        = (*SQLiteStore)(nil)
	_ RedisClient   = (*GoRedis)(nil)
)

func TestKeyFormat(t *testing.T) {
	k := Key{Namespace: "admin", Mode: CommitLive, Domain: "tickets", Scope: "intake"}
	if got := k.String(); got != "admin_live_tickets_intake" {
		t.Fatalf("unexpected key %q", got)
	}
	k.RecordID = "42"
	if got := k.String(); got != "admin_live_tickets_intake_42" {
		t.Fatalf("unexpected key with record %q", got)
	}
}

func TestResolveModes(t *testing.T) {
	cases := []struct {
		host   HostContext
		commit CommitMode
		record RecordMode
	}{
		{HostContext{}, CommitSandbox, RecordCreate},
		{HostContext{Production: true, Route: "/workflows/intake/run"}, CommitLive, RecordCreate},
		{HostContext{Production: true, Route: "/workflows/intake/preview"}, CommitSandbox, RecordCreate},
		{HostContext{Production: true, Route: "/Builder/intake"}, CommitSandbox, RecordCreate},
		{HostContext{Production: true, RecordID: "7"}, CommitLive, RecordUpdate},
		{HostContext{RecordID: "7"}, CommitSandbox, RecordUpdate},
	}
	for _, tc := range cases {
		commit, record := ResolveModes(tc.host)
		if commit != tc.commit || record != tc.record {
			t.Fatalf("ResolveModes(%+v) = %s/%s, want %s/%s", tc.host, commit, record, tc.commit, tc.record)
		}
	}
}

func exerciseStore(t *testing.T, store SnapshotStore) {
	t.Helper()
	ctx := context.Background()

	snap, err := store.Load(ctx, "missing")
	if err != nil || snap != nil {
		t.Fatalf("expected no snapshot, got %+v, %v", snap, err)
	}

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in := Snapshot{Step: "details", Data: map[string]any{"email": "a@b.c"}, History: []string{"start"}, UpdatedAt: at}
	if err := store.Save(ctx, "k1", in); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	in.Data["email"] = "mutated"

	got, err := store.Load(ctx, "k1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got == nil || got.Step != "details" || got.Data["email"] != "a@b.c" {
		t.Fatalf("unexpected snapshot %+v", got)
	}
	if len(got.History) != 1 || got.History[0] != "start" {
		t.Fatalf("unexpected history %v", got.History)
	}
	if !got.UpdatedAt.Equal(at) {
		t.Fatalf("expected updatedAt %s, got %s", at, got.UpdatedAt)
	}

	if err := store.Save(ctx, "k1", Snapshot{Step: "done", UpdatedAt: at}); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	got, _ = store.Load(ctx, "k1")
	if got == nil || got.Step != "done" {
		t.Fatalf("expected last write to win, got %+v", got)
	}

	if err := store.Delete(ctx, "k1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if got, _ := store.Load(ctx, "k1"); got != nil {
		t.Fatalf("expected snapshot deleted, got %+v", got)
	}
}

func exercisePrune(t *testing.T, store interface {
	SnapshotStore
	Pruner
}) {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	_ = store.Save(ctx, "old", Snapshot{Step: "a", UpdatedAt: now.Add(-72 * time.Hour)})
	_ = store.Save(ctx, "fresh", Snapshot{Step: "a", UpdatedAt: now.Add(-time.Hour)})

	n, err := store.Prune(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("prune failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 pruned, got %d", n)
	}
	if got, _ := store.Load(ctx, "old"); got != nil {
		t.Fatalf("expected old snapshot pruned")
	}
	if got, _ := store.Load(ctx, "fresh"); got == nil {
		t.Fatalf("expected fresh snapshot kept")
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
	exercisePrune(t, NewMemoryStore())
}

func openSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLiteStore(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore(t *testing.T) {
	exerciseStore(t, openSQLite(t))
	exercisePrune(t, openSQLite(t))
}

func TestSQLiteStoreNotConfigured(t *testing.T) {
	var store *SQLiteStore
	if _, err := store.Load(context.Background(), "k"); err == nil {
		t.Fatalf("expected error from unconfigured store")
	}
}

type fakeRedis struct {
	values map[string]string
	ttls   map[string]time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) (string, error) {
	return f.values[key], nil
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	f.values[key] = value.(string)
	f.ttls[key] = ttl
	return nil
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.values, key)
	}
	return nil
}

func TestRedisStoreWithFakeClient(t *testing.T) {
	client := newFakeRedis()
	store := NewRedisStore(client, time.Hour, "")
	exerciseStore(t, store)

	_ = store.Save(context.Background(), "k2", Snapshot{Step: "a"})
	if _, ok := client.values[DefaultRedisPrefix+"k2"]; !ok {
		t.Fatalf("expected prefixed key, have %v", client.values)
	}
	if client.ttls[DefaultRedisPrefix+"k2"] != time.Hour {
		t.Fatalf("expected ttl to be applied")
	}
}

func TestRedisStoreLive(t *testing.T) {
	addr := os.Getenv("STEPFLOW_REDIS_ADDR")
	if addr == "" {
		t.Skip("STEPFLOW_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}
	prefix := "stepflow:test:" + time.Now().Format("150405.000000") + ":"
	exerciseStore(t, NewRedisStore(NewGoRedis(client), time.Minute, prefix))
}
