package messaging

import "context"

// Messenger is the outbound port to the delivery collaborator
// (WhatsApp gateway in production). The engine only queues requests and
// records message_sent_at; delivery is entirely the collaborator's job.
type Messenger interface {
	SendPaymentRequest(ctx context.Context, req PaymentRequest) error
}

// PaymentRequest is the payload handed to the delivery collaborator.
// Amounts are read at delivery time so the message reflects the
// member's current due, not the due at queueing time.
type PaymentRequest struct {
	AggregateID string
	MemberID    string
	DisplayName string
	Contact     string
	MatchRef    string
	DuePaise    int64
}
