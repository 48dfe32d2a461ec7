package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"squadpay/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedAggregate(t *testing.T, repo *SQLiteRepository) *core.Aggregate {
	t.Helper()
	agg := &core.Aggregate{
		ID:         "agg-1",
		MatchRef:   "match-1",
		TotalPaise: 20000,
		Members: []core.Member{
			{ID: "mem-1", DisplayName: "arun", Contact: "+911111111111", CalculatedPaise: 10000},
			{ID: "mem-2", DisplayName: "bala", Contact: "+912222222222", CalculatedPaise: 10000},
		},
	}
	if err := repo.CreateAggregate(context.Background(), agg); err != nil {
		t.Fatalf("CreateAggregate: %v", err)
	}
	return agg
}

func TestAggregateRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedAggregate(t, repo)

	loaded, err := repo.GetAggregate(ctx, "agg-1")
	if err != nil {
		t.Fatalf("GetAggregate: %v", err)
	}
	if loaded.Version != 1 || loaded.TotalPaise != 20000 {
		t.Errorf("loaded version=%d total=%d", loaded.Version, loaded.TotalPaise)
	}
	if len(loaded.Members) != 2 || loaded.Members[0].ID != "mem-1" || loaded.Members[1].ID != "mem-2" {
		t.Errorf("member order not preserved: %+v", loaded.Members)
	}

	if _, err := repo.GetAggregate(ctx, "ghost"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetAggregate(ghost) err = %v, want ErrNotFound", err)
	}
}

func TestSaveAggregateVersionCheck(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedAggregate(t, repo)

	fresh, _ := repo.GetAggregate(ctx, "agg-1")
	stale, _ := repo.GetAggregate(ctx, "agg-1")

	fresh.TotalPaise = 25000
	if err := repo.SaveAggregate(ctx, fresh, nil, nil); err != nil {
		t.Fatalf("SaveAggregate: %v", err)
	}
	if fresh.Version != 2 {
		t.Errorf("Version = %d after save, want 2", fresh.Version)
	}

	stale.TotalPaise = 30000
	if err := repo.SaveAggregate(ctx, stale, nil, nil); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("stale save err = %v, want ErrConflict", err)
	}

	// The losing writer changed nothing.
	loaded, _ := repo.GetAggregate(ctx, "agg-1")
	if loaded.TotalPaise != 25000 {
		t.Errorf("total = %d, want 25000", loaded.TotalPaise)
	}
}

func TestSaveAggregateCarriesEvents(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedAggregate(t, repo)

	agg, _ := repo.GetAggregate(ctx, "agg-1")
	agg.Members[0].PaidPaise = 4000
	event := core.PaymentEvent{
		AggregateID: agg.ID,
		MemberID:    "mem-1",
		AmountPaise: 4000,
		Method:      core.MethodUPI,
		Note:        "net practice dues",
		PaidAt:      time.Now(),
	}
	if err := repo.SaveAggregate(ctx, agg, []core.PaymentEvent{event}, nil); err != nil {
		t.Fatalf("SaveAggregate: %v", err)
	}

	events, err := repo.ListPaymentEvents(ctx, "mem-1")
	if err != nil {
		t.Fatalf("ListPaymentEvents: %v", err)
	}
	if len(events) != 1 || events[0].AmountPaise != 4000 || events[0].Note != "net practice dues" {
		t.Fatalf("events = %+v", events)
	}

	// A plain member rewrite must not touch the event trail.
	agg, _ = repo.GetAggregate(ctx, "agg-1")
	agg.Members[1].CalculatedPaise = 16000
	if err := repo.SaveAggregate(ctx, agg, nil, nil); err != nil {
		t.Fatalf("SaveAggregate rewrite: %v", err)
	}
	events, _ = repo.ListPaymentEvents(ctx, "mem-1")
	if len(events) != 1 {
		t.Fatalf("member rewrite lost events: got %d, want 1", len(events))
	}

	// A purge in the same save wipes the member's trail.
	agg, _ = repo.GetAggregate(ctx, "agg-1")
	agg.Members[0].PaidPaise = 0
	if err := repo.SaveAggregate(ctx, agg, nil, []string{"mem-1"}); err != nil {
		t.Fatalf("SaveAggregate with purge: %v", err)
	}
	events, _ = repo.ListPaymentEvents(ctx, "mem-1")
	if len(events) != 0 {
		t.Errorf("got %d events after purge, want 0", len(events))
	}
}

func TestDeleteAggregateCascades(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedAggregate(t, repo)

	if err := repo.DeleteAggregate(ctx, "agg-1"); err != nil {
		t.Fatalf("DeleteAggregate: %v", err)
	}
	if _, _, err := repo.GetMember(ctx, "mem-1"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("member survived cascade: err = %v", err)
	}
	if err := repo.DeleteAggregate(ctx, "agg-1"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestGetMember(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedAggregate(t, repo)

	m, aggID, err := repo.GetMember(ctx, "mem-2")
	if err != nil {
		t.Fatalf("GetMember: %v", err)
	}
	if aggID != "agg-1" || m.DisplayName != "bala" {
		t.Errorf("got member %q in aggregate %q", m.DisplayName, aggID)
	}
}

func TestMarkMessageSentOnce(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedAggregate(t, repo)

	stamped, err := repo.MarkMessageSent(ctx, "agg-1", "mem-1", time.Now())
	if err != nil {
		t.Fatalf("MarkMessageSent: %v", err)
	}
	if !stamped {
		t.Fatal("first stamp should succeed")
	}

	// Redelivery of the same request is a no-op.
	stamped, err = repo.MarkMessageSent(ctx, "agg-1", "mem-1", time.Now())
	if err != nil {
		t.Fatalf("MarkMessageSent: %v", err)
	}
	if stamped {
		t.Fatal("second stamp should report already sent")
	}

	m, _, _ := repo.GetMember(ctx, "mem-1")
	if m.MessageSentAt == nil {
		t.Fatal("message_sent_at not persisted")
	}
}

func TestMarkMessageSentInvalidatesSnapshots(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedAggregate(t, repo)

	snapshot, err := repo.GetAggregate(ctx, "agg-1")
	if err != nil {
		t.Fatalf("GetAggregate: %v", err)
	}

	if _, err := repo.MarkMessageSent(ctx, "agg-1", "mem-1", time.Now()); err != nil {
		t.Fatalf("MarkMessageSent: %v", err)
	}

	// The snapshot predates the stamp. Saving it would rewrite the
	// member set with message_sent_at cleared, so it must conflict.
	snapshot.TotalPaise = 25000
	snapshot.Rebalance()
	if err := repo.SaveAggregate(ctx, snapshot, nil, nil); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("stale save err = %v, want ErrConflict", err)
	}

	m, _, _ := repo.GetMember(ctx, "mem-1")
	if m.MessageSentAt == nil {
		t.Fatal("stale save erased message_sent_at")
	}

	// A fresh load sees the bumped version and saves cleanly.
	fresh, err := repo.GetAggregate(ctx, "agg-1")
	if err != nil {
		t.Fatalf("GetAggregate: %v", err)
	}
	fresh.TotalPaise = 25000
	fresh.Rebalance()
	if err := repo.SaveAggregate(ctx, fresh, nil, nil); err != nil {
		t.Fatalf("fresh save: %v", err)
	}
	m, _, _ = repo.GetMember(ctx, "mem-1")
	if m.MessageSentAt == nil {
		t.Fatal("fresh save lost message_sent_at")
	}
}
