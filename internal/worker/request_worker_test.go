package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"squadpay/internal/amqp"
	"squadpay/internal/core"
	"squadpay/internal/messaging"
	"squadpay/internal/storage"
)

type fakeMessenger struct {
	sent []messaging.PaymentRequest
	fail error
}

func (f *fakeMessenger) SendPaymentRequest(ctx context.Context, req messaging.PaymentRequest) error {
	if f.fail != nil {
		return f.fail
	}
	f.sent = append(f.sent, req)
	return nil
}

func newTestWorker(t *testing.T) (*RequestWorker, *storage.SQLiteRepository, *fakeMessenger) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	m := &fakeMessenger{}
	return NewRequestWorker(repo, m), repo, m
}

func seedAggregate(t *testing.T, repo *storage.SQLiteRepository) *core.Aggregate {
	t.Helper()
	agg := &core.Aggregate{
		ID:         "agg-1",
		MatchRef:   "sunday-game",
		TotalPaise: 20000,
		Members: []core.Member{
			{ID: "mem-1", DisplayName: "arun", Contact: "+911111111111", CalculatedPaise: 10000},
			{ID: "mem-2", DisplayName: "bala", Contact: "+912222222222", CalculatedPaise: 10000, PaidPaise: 2500},
		},
	}
	if err := repo.CreateAggregate(context.Background(), agg); err != nil {
		t.Fatalf("CreateAggregate: %v", err)
	}
	return agg
}

func TestHandleRequestMessageDelivers(t *testing.T) {
	w, repo, m := newTestWorker(t)
	ctx := context.Background()
	seedAggregate(t, repo)

	msg := amqp.NewPaymentRequestMessage("agg-1", "mem-2")
	if err := w.HandleRequestMessage(ctx, msg); err != nil {
		t.Fatalf("HandleRequestMessage: %v", err)
	}

	if len(m.sent) != 1 {
		t.Fatalf("sent %d requests, want 1", len(m.sent))
	}
	req := m.sent[0]
	if req.MatchRef != "sunday-game" || req.Contact != "+912222222222" {
		t.Errorf("request = %+v", req)
	}
	// The due reflects state at delivery time, partial payment included.
	if req.DuePaise != 7500 {
		t.Errorf("DuePaise = %d, want 7500", req.DuePaise)
	}

	member, _, _ := repo.GetMember(ctx, "mem-2")
	if member.MessageSentAt == nil {
		t.Fatal("member not stamped after delivery")
	}
}

func TestHandleRequestMessageSkipsAlreadySent(t *testing.T) {
	w, repo, m := newTestWorker(t)
	ctx := context.Background()
	seedAggregate(t, repo)

	msg := amqp.NewPaymentRequestMessage("agg-1", "mem-1")
	if err := w.HandleRequestMessage(ctx, msg); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	// Redelivery acks without messaging again.
	if err := w.HandleRequestMessage(ctx, msg); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if len(m.sent) != 1 {
		t.Errorf("sent %d requests across redelivery, want 1", len(m.sent))
	}
}

func TestHandleRequestMessageRemovedMember(t *testing.T) {
	w, repo, m := newTestWorker(t)
	ctx := context.Background()
	seedAggregate(t, repo)

	// Queued request for a member who has since left: ack, don't loop.
	if err := w.HandleRequestMessage(ctx, amqp.NewPaymentRequestMessage("agg-1", "ghost")); err != nil {
		t.Fatalf("HandleRequestMessage: %v", err)
	}
	if len(m.sent) != 0 {
		t.Errorf("sent %d requests for removed member, want 0", len(m.sent))
	}
	if _, _, err := repo.GetMember(ctx, "ghost"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("GetMember(ghost) err = %v, want ErrNotFound", err)
	}
}

func TestHandleRequestMessageAggregateMismatch(t *testing.T) {
	w, repo, m := newTestWorker(t)
	ctx := context.Background()
	seedAggregate(t, repo)

	if err := w.HandleRequestMessage(ctx, amqp.NewPaymentRequestMessage("other-agg", "mem-1")); err != nil {
		t.Fatalf("HandleRequestMessage: %v", err)
	}
	if len(m.sent) != 0 {
		t.Errorf("sent %d requests on mismatch, want 0", len(m.sent))
	}
}

func TestHandleRequestMessageMessengerFailure(t *testing.T) {
	w, repo, m := newTestWorker(t)
	ctx := context.Background()
	seedAggregate(t, repo)
	m.fail = errors.New("gateway unreachable")

	// A failed send must nack for retry and leave the member unstamped.
	if err := w.HandleRequestMessage(ctx, amqp.NewPaymentRequestMessage("agg-1", "mem-1")); err == nil {
		t.Fatal("expected error when messenger fails")
	}
	member, _, _ := repo.GetMember(ctx, "mem-1")
	if member.MessageSentAt != nil {
		t.Fatal("member stamped despite failed delivery")
	}
}
