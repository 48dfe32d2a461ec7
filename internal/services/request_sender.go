package services

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"squadpay/internal/core"
)

// sendConcurrency bounds parallel publishes per request batch.
const sendConcurrency = 4

// SendReport is the partial-success outcome of a request batch.
// A failed publish never rolls back aggregate state.
type SendReport struct {
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// SendPaymentRequests queues a payment-request message for each target
// member that has not been messaged yet. When memberIDs is empty the
// whole squad is targeted. Publishing happens outside the aggregate's
// mutation lock; the worker stamps message_sent_at after delivery, so
// the publish itself is retryable and keyed per aggregate+member.
func (s *PaymentService) SendPaymentRequests(ctx context.Context, aggregateID string, memberIDs []string) (SendReport, error) {
	agg, err := s.storage.GetAggregate(ctx, aggregateID)
	if err != nil {
		return SendReport{}, err
	}

	targets := make([]core.Member, 0, len(agg.Members))
	if len(memberIDs) == 0 {
		targets = append(targets, agg.Members...)
	} else {
		for _, id := range memberIDs {
			m := agg.MemberByID(id)
			if m == nil {
				return SendReport{}, core.ErrNotFound
			}
			targets = append(targets, *m)
		}
	}

	var (
		mu     sync.Mutex
		report SendReport
	)

	if s.publisher == nil {
		for _, member := range targets {
			if member.MessageSentAt != nil {
				report.Skipped++
			} else {
				report.Failed++
			}
		}
		slog.WarnContext(ctx, "AMQP publisher not available, payment requests not queued",
			"aggregate_id", aggregateID, "failed", report.Failed)
		return report, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sendConcurrency)
	for _, member := range targets {
		if member.MessageSentAt != nil {
			report.Skipped++
			continue
		}
		g.Go(func() error {
			err := s.publisher.PublishPaymentRequest(gctx, aggregateID, member.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				slog.ErrorContext(gctx, "Failed to publish payment request",
					"aggregate_id", aggregateID,
					"member_id", member.ID,
					"error", err)
				report.Failed++
				// Partial success: the batch continues.
				return nil
			}
			report.Sent++
			return nil
		})
	}
	_ = g.Wait()

	slog.InfoContext(ctx, "Payment request batch finished",
		"aggregate_id", aggregateID,
		"sent", report.Sent,
		"skipped", report.Skipped,
		"failed", report.Failed)
	return report, nil
}
