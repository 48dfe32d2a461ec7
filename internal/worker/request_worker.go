package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"squadpay/internal/amqp"
	"squadpay/internal/core"
	"squadpay/internal/messaging"
	"squadpay/internal/storage"
)

// RequestWorker delivers queued payment requests. It re-reads member
// state at delivery time, skips members already marked sent (so message
// redelivery is harmless) and stamps message_sent_at only after the
// messenger accepted the request.
type RequestWorker struct {
	storage   *storage.SQLiteRepository
	messenger messaging.Messenger
}

func NewRequestWorker(storage *storage.SQLiteRepository, messenger messaging.Messenger) *RequestWorker {
	return &RequestWorker{
		storage:   storage,
		messenger: messenger,
	}
}

// HandleRequestMessage processes one payment-request message from AMQP.
// A nil return acks the message; an error nacks it back onto the queue.
func (w *RequestWorker) HandleRequestMessage(ctx context.Context, msg *amqp.PaymentRequestMessage) error {
	slog.InfoContext(ctx, "Processing payment request message",
		"aggregate_id", msg.AggregateID,
		"member_id", msg.MemberID)

	member, aggregateID, err := w.storage.GetMember(ctx, msg.MemberID)
	if errors.Is(err, core.ErrNotFound) {
		// Member was removed after the request was queued. Nothing to
		// deliver; ack so the message does not loop forever.
		slog.WarnContext(ctx, "Payment request for removed member, skipping",
			"aggregate_id", msg.AggregateID,
			"member_id", msg.MemberID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get member: %w", err)
	}
	if aggregateID != msg.AggregateID {
		slog.WarnContext(ctx, "Payment request aggregate mismatch, skipping",
			"expected", msg.AggregateID,
			"actual", aggregateID,
			"member_id", msg.MemberID)
		return nil
	}
	if member.MessageSentAt != nil {
		slog.InfoContext(ctx, "Payment request already sent, skipping",
			"member_id", msg.MemberID,
			"sent_at", *member.MessageSentAt)
		return nil
	}

	agg, err := w.storage.GetAggregate(ctx, aggregateID)
	if err != nil {
		return fmt.Errorf("get aggregate: %w", err)
	}
	current := agg.MemberByID(member.ID)
	if current == nil {
		return nil
	}

	if err := w.messenger.SendPaymentRequest(ctx, messaging.PaymentRequest{
		AggregateID: aggregateID,
		MemberID:    current.ID,
		DisplayName: current.DisplayName,
		Contact:     current.Contact,
		MatchRef:    agg.MatchRef,
		DuePaise:    current.DuePaise(),
	}); err != nil {
		return fmt.Errorf("send payment request: %w", err)
	}

	marked, err := w.storage.MarkMessageSent(ctx, aggregateID, member.ID, time.Now())
	if err != nil {
		return fmt.Errorf("mark message sent: %w", err)
	}
	if !marked {
		// Another worker won the race; the member is marked either way.
		slog.InfoContext(ctx, "Member was marked sent concurrently", "member_id", member.ID)
	}
	return nil
}
