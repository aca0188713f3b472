package slidesync

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseMessage(t *testing.T) {
	msg, err := parseMessage([]byte(`{"type":"poll_state","pollId":"p1","votes":{"a":2}}`))
	if err != nil {
		t.Fatalf("parseMessage() error: %v", err)
	}
	if msg.StringField("type") != "poll_state" {
		t.Errorf("type = %q, want %q", msg.StringField("type"), "poll_state")
	}
	votes, ok := msg["votes"].(map[string]any)
	if !ok || votes["a"] != float64(2) {
		t.Errorf("votes = %#v, want map with a=2", msg["votes"])
	}
}

func TestParseMessage_EmptyObject(t *testing.T) {
	msg, err := parseMessage([]byte(`{}`))
	if err != nil {
		t.Fatalf("parseMessage() error: %v", err)
	}
	if msg == nil || len(msg) != 0 {
		t.Errorf("msg = %#v, want empty non-nil message", msg)
	}
}

func TestParseMessage_Null(t *testing.T) {
	_, err := parseMessage([]byte(`null`))
	if !errors.Is(err, errNotObject) {
		t.Errorf("err = %v, want errNotObject", err)
	}
}

func TestMessage_StringField(t *testing.T) {
	msg := Message{"type": "cursor", "x": float64(3)}
	if got := msg.StringField("type"); got != "cursor" {
		t.Errorf("StringField(type) = %q", got)
	}
	if got := msg.StringField("x"); got != "" {
		t.Errorf("StringField(x) = %q, want empty for a non-string", got)
	}
	if got := msg.StringField("missing"); got != "" {
		t.Errorf("StringField(missing) = %q, want empty", got)
	}
}

func TestMessage_HasField(t *testing.T) {
	msg := Message{"type": "cursor", "kind": nil, "n": float64(0), "s": ""}
	tests := []struct {
		field string
		want  bool
	}{
		{"type", true},
		{"kind", false},
		{"n", true},
		{"s", true},
		{"missing", false},
	}
	for _, tt := range tests {
		if got := msg.hasField(tt.field); got != tt.want {
			t.Errorf("hasField(%q) = %v, want %v", tt.field, got, tt.want)
		}
	}
}

func TestMessage_Decode(t *testing.T) {
	msg, err := parseMessage([]byte(`{"type":"poll_state","pollId":"p1","votes":{"a":2,"b":0},"myChoices":["a"]}`))
	if err != nil {
		t.Fatalf("parseMessage() error: %v", err)
	}

	var state PollState
	if err := msg.Decode(&state); err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	want := PollState{
		Type:      TypePollState,
		PollID:    "p1",
		Votes:     map[string]int{"a": 2, "b": 0},
		MyChoices: []string{"a"},
	}
	if !reflect.DeepEqual(state, want) {
		t.Errorf("Decode() = %+v, want %+v", state, want)
	}
}

func TestMessage_DecodeTypeMismatch(t *testing.T) {
	msg := Message{"count": "many"}
	var vc ViewerCount
	if err := msg.Decode(&vc); err == nil {
		t.Fatal("Decode() should fail when a field has the wrong type")
	}
}

func TestEncodePayload(t *testing.T) {
	data, err := encodePayload(map[string]int{"slide": 4})
	if err != nil {
		t.Fatalf("encodePayload() error: %v", err)
	}
	if string(data) != `{"slide":4}` {
		t.Errorf("encodePayload() = %s", data)
	}

	if _, err := encodePayload(func() {}); err == nil {
		t.Fatal("encodePayload() should fail for a func")
	}
}
