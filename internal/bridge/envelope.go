package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// request is the JSON-RPC envelope sent to the provider process. Each
// attempt reuses the same envelope so a retry is an exact replay.
type request struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      string        `json:"id"`
	Method  string        `json:"method"`
	Params  requestParams `json:"params"`
}

type requestParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// newRequest builds a tools/call envelope for one tool invocation.
func newRequest(tool string, args map[string]any) request {
	if args == nil {
		args = map[string]any{}
	}
	return request{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  "tools/call",
		Params: requestParams{
			Name:      tool,
			Arguments: args,
		},
	}
}

func (r request) encode() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode tool request: %w", err)
	}
	// The provider reads line-delimited JSON from stdin.
	return append(data, '\n'), nil
}

// response is the provider's JSON-RPC reply. Exactly one of Result and
// Error is expected; a reply with neither is malformed.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   json.RawMessage `json:"error"`
}

func decodeResponse(data []byte) (*response, error) {
	var resp response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode tool response: %w", err)
	}
	return &resp, nil
}
