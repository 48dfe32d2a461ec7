package amqp

import (
	"encoding/json"
	"time"
)

// PaymentRequestMessage asks the delivery worker to send one payment
// request. It carries only the aggregate and member keys; the worker
// fetches current amounts from the database at delivery time, so a
// delayed message never shows stale numbers. The key pair also makes
// redelivery idempotent: the worker skips members already marked sent.
type PaymentRequestMessage struct {
	AggregateID string    `json:"aggregate_id"`
	MemberID    string    `json:"member_id"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewPaymentRequestMessage creates a request message for one member.
func NewPaymentRequestMessage(aggregateID, memberID string) *PaymentRequestMessage {
	return &PaymentRequestMessage{
		AggregateID: aggregateID,
		MemberID:    memberID,
		Timestamp:   time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *PaymentRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// PaymentRequestMessageFromJSON creates a message from JSON bytes
func PaymentRequestMessageFromJSON(data []byte) (*PaymentRequestMessage, error) {
	var msg PaymentRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
