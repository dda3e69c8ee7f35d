package protocol

import (
	"errors"
	"testing"
)

func TestParseClientMessageChat(t *testing.T) {
	raw := []byte(`{"type":"chat_message","companion_id":"c1","content":"hello","ts_ms":123}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}

	chat, ok := msg.(ChatMessage)
	if !ok {
		t.Fatalf("message type = %T, want ChatMessage", msg)
	}
	if chat.CompanionID != "c1" || chat.Content != "hello" {
		t.Fatalf("unexpected chat message: %+v", chat)
	}
	if chat.TSMs != 123 {
		t.Fatalf("TSMs = %d, want 123", chat.TSMs)
	}
}

func TestParseClientMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"wat"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseClientMessageRejectsMissingFields(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{"type":"chat_message","content":"hi"}`)); err == nil {
		t.Fatal("missing companion_id accepted")
	}
	if _, err := ParseClientMessage([]byte(`{"type":"chat_message","companion_id":"c1"}`)); err == nil {
		t.Fatal("missing content accepted")
	}
	if _, err := ParseClientMessage([]byte(`not json`)); err == nil {
		t.Fatal("invalid json accepted")
	}
}
