package messaging

import (
	"context"
	"log/slog"

	"squadpay/internal/core"
)

// LogMessenger is a stand-in delivery adapter that only logs the
// request. Useful for local development and as the default until a real
// gateway adapter is wired in.
type LogMessenger struct{}

func NewLogMessenger() *LogMessenger {
	return &LogMessenger{}
}

func (m *LogMessenger) SendPaymentRequest(ctx context.Context, req PaymentRequest) error {
	slog.InfoContext(ctx, "Payment request (log only, no delivery)",
		"aggregate_id", req.AggregateID,
		"member_id", req.MemberID,
		"display_name", req.DisplayName,
		"contact", req.Contact,
		"match_ref", req.MatchRef,
		"due", core.FormatRupees(req.DuePaise))
	return nil
}
