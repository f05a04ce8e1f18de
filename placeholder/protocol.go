package placeholder

import (
	"encoding/json"
	"errors"
	"fmt"

	berr "github.com/next-trace/scg-placeholder-bus/contract/errors"
)

// DefaultNamespace is the channel namespace used by the protocol.
const DefaultNamespace = "placeholder_api"

// Reserved results. A handler returning one of these is indistinguishable from
// the protocol outcome, so providers must never produce them.
const (
	// TimeoutSentinel is returned when no response arrived in time. It is also
	// how a missing handler surfaces to the requester.
	TimeoutSentinel = "PLACEHOLDER_TIMEOUT"
	// InvalidSentinel is returned when a response could not be decoded.
	InvalidSentinel = "PLACEHOLDER_INVALID"
)

// IsSentinel reports whether s is one of the reserved results.
func IsSentinel(s string) bool { return s == TimeoutSentinel || s == InvalidSentinel }

// RequestChannel is the channel requests are published on.
func RequestChannel(ns string) string { return ns + ":request" }

// ResponseChannel is the channel the response for requestID is published on.
func ResponseChannel(ns, requestID string) string { return ns + ":response:" + requestID }

// NewRequestID joins a placeholder id and a unique token.
func NewRequestID(id, token string) string { return id + ":" + token }

type requestPayload struct {
	ID        string `json:"id"`
	Params    Params `json:"params"`
	RequestID string `json:"requestId"`
}

type responsePayload struct {
	Result *string `json:"result"`
}

func encodeRequest(id string, params Params, requestID string) (string, error) {
	if params == nil {
		params = Params{}
	}

	b, err := json.Marshal(requestPayload{ID: id, Params: params, RequestID: requestID})
	if err != nil {
		return "", fmt.Errorf("encode request %s: %w", id, errors.Join(berr.ErrSerializationFailed, err))
	}

	return string(b), nil
}

func decodeRequest(msg string) (requestPayload, error) {
	var req requestPayload
	if err := json.Unmarshal([]byte(msg), &req); err != nil {
		return requestPayload{}, fmt.Errorf("decode request: %w", errors.Join(berr.ErrInvalidPayload, err))
	}

	if req.RequestID == "" {
		return requestPayload{}, fmt.Errorf("decode request %q: missing requestId: %w", req.ID, berr.ErrInvalidPayload)
	}

	if req.Params == nil {
		req.Params = Params{}
	}

	return req, nil
}

func encodeResponse(result string) (string, error) {
	b, err := json.Marshal(responsePayload{Result: &result})
	if err != nil {
		return "", fmt.Errorf("encode response: %w", errors.Join(berr.ErrSerializationFailed, err))
	}

	return string(b), nil
}

// decodeResult extracts the result string; anything else is InvalidSentinel.
func decodeResult(msg string) (string, bool) {
	var resp responsePayload
	if err := json.Unmarshal([]byte(msg), &resp); err != nil || resp.Result == nil {
		return InvalidSentinel, false
	}

	return *resp.Result, true
}
