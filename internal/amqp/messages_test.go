package amqp

import "testing"

func TestLedgerEventMessageRoundTrip(t *testing.T) {
	msg := NewLedgerEventMessage(42, 7, ActionDeleted)

	data, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	got, err := LedgerEventMessageFromJSON(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.TransactionID != 42 || got.UserID != 7 || got.Action != ActionDeleted {
		t.Fatalf("unexpected message: %+v", got)
	}
	if got.Timestamp.IsZero() {
		t.Fatal("timestamp not set")
	}
}

func TestLedgerEventMessageFromInvalidJSON(t *testing.T) {
	if _, err := LedgerEventMessageFromJSON([]byte("not json")); err == nil {
		t.Fatal("expected error for invalid payload")
	}
}
