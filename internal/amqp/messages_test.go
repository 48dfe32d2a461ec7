package amqp

import "testing"

func TestPaymentRequestMessageRoundTrip(t *testing.T) {
	msg := NewPaymentRequestMessage("agg-1", "mem-1")
	if msg.Timestamp.IsZero() {
		t.Fatal("timestamp not set")
	}

	data, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}

	decoded, err := PaymentRequestMessageFromJSON(data)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	if decoded.AggregateID != "agg-1" || decoded.MemberID != "mem-1" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestPaymentRequestMessageFromJSONInvalid(t *testing.T) {
	if _, err := PaymentRequestMessageFromJSON([]byte("not json")); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}
