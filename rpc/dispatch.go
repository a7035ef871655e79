package rpc

import (
	"encoding/json"
	"fmt"
)

// Protocol names the method/argument marshalling spoken on the socket.
const Protocol = "snabb-config-leader-v1"

// Request is the marshalled {method, args} pair inside a frame.
type Request struct {
	Method string `json:"method"`
	Args   Args   `json:"args"`
}

type Args struct {
	Schema string `json:"schema,omitempty"`
	Path   string `json:"path,omitempty"`
	Config string `json:"config,omitempty"`
}

// Reply carries either a method result or an error message; exactly one
// side is set.
type Reply struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

type DescribeResult struct {
	NativeSchema string `json:"native_schema"`
}

type GetConfigResult struct {
	Config string `json:"config"`
}

// Methods is what the leader exposes over the socket.
type Methods interface {
	Describe() (DescribeResult, error)
	GetConfig(Args) (GetConfigResult, error)
	SetConfig(Args) error
	AddConfig(Args) error
	RemoveConfig(Args) error
}

// Dispatch routes one request payload. Unmarshalling failures and unknown
// methods are returned as errors (the peer is torn down); a method that
// fails cleanly becomes a framed error reply instead.
func Dispatch(m Methods, payload []byte) ([]byte, error) {
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("malformed request: %w", err)
	}
	var result any
	var err error
	switch req.Method {
	case "describe":
		result, err = m.Describe()
	case "get-config":
		result, err = m.GetConfig(req.Args)
	case "set-config":
		err = m.SetConfig(req.Args)
		result = struct{}{}
	case "add-config":
		err = m.AddConfig(req.Args)
		result = struct{}{}
	case "remove-config":
		err = m.RemoveConfig(req.Args)
		result = struct{}{}
	default:
		return nil, fmt.Errorf("unknown method %q", req.Method)
	}
	if err != nil {
		return json.Marshal(Reply{Error: err.Error()})
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Reply{Result: raw})
}
