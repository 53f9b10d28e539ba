// Package rpcjson supplies a grpc encoding.Codec that marshals RPC
// payloads as JSON, standing in for generated protobuf code: no .proto
// sources exist for this system's message set, so client.Client selects
// this codec on every call it invokes directly through
// grpc.ClientConn.Invoke, exactly the way a generated stub would.
package rpcjson

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// Name is the codec identifier client.Client passes to
// grpc.CallContentSubtype on each call to a child agent.
const Name = "json"

func init() {
	encoding.RegisterCodec(codec{})
}

// codec implements encoding.Codec by delegating to encoding/json.
type codec struct{}

func (codec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (codec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (codec) Name() string {
	return Name
}
