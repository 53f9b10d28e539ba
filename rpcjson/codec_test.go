package rpcjson_test

import (
	"testing"

	"google.golang.org/grpc/encoding"

	_ "github.com/icrar/dfms/rpcjson"
)

func TestCodecIsRegistered(t *testing.T) {
	if c := encoding.GetCodec("json"); c == nil {
		t.Fatal("expected the json codec to be registered")
	}
}

func TestCodecRoundTrips(t *testing.T) {
	c := encoding.GetCodec("json")
	type payload struct {
		SessionID string `json:"session_id"`
	}

	data, err := c.Marshal(payload{SessionID: "s1"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got payload
	if err := c.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.SessionID != "s1" {
		t.Fatalf("expected s1, got %s", got.SessionID)
	}
}
