package relay

import (
	"encoding/json"
	"errors"
	"fmt"

	"PosPrint/app/models"
)

// Outbound request actions understood by the companion agent.
const (
	ActionInit         = "init"
	ActionListPrinters = "listprinters"
	ActionListPorts    = "listports"
	ActionOpenPort     = "openport"
	ActionPrintRaw     = "printraw"
	ActionPrintHTML    = "printhtml"
)

// Inbound message actions.
const (
	ActionResponse = "response"
	ActionError    = "error"
)

// Sentinel errors for the relay taxonomy.
var (
	ErrNotConnected      = errors.New("relay: no companion channel")
	ErrHandshakeTimeout  = errors.New("relay: companion did not answer the handshake")
	ErrMalformedResponse = errors.New("relay: ambiguous or unrecognized response")
)

// RelayError wraps an explicit error message reported by the companion.
type RelayError struct {
	Message string
}

func (e *RelayError) Error() string {
	return fmt.Sprintf("relay: companion reported: %s", e.Message)
}

// Request is the outbound JSON envelope. Every request carries the session
// cookie; the remaining fields depend on the action.
type Request struct {
	A        string                 `json:"a"`
	Data     string                 `json:"data,omitempty"` // base64 bytes or markup
	Printer  string                 `json:"printer,omitempty"`
	Port     string                 `json:"port,omitempty"`
	Settings *models.SerialSettings `json:"settings,omitempty"`
	Cookie   string                 `json:"cookie"`

	id uint64 // correlates the immediate delivery with its timed resend
}

// Message is the inbound envelope from the companion window.
type Message struct {
	A    string `json:"a"`
	JSON string `json:"json,omitempty"` // encoded Response for ActionResponse
}

// Response is the decoded payload of a response message. Exactly one of
// Ports, Printers, Error, Ready is expected; Cookie may accompany any of
// them and is persisted whenever present.
type Response struct {
	Ports    []string `json:"ports,omitempty"`
	Printers []string `json:"printers,omitempty"`
	Error    *string  `json:"error,omitempty"`
	Ready    *bool    `json:"ready,omitempty"`
	Cookie   *string  `json:"cookie,omitempty"`
}

// ResponseKind tags the decoded response payload.
type ResponseKind int

const (
	KindPorts ResponseKind = iota
	KindPrinters
	KindError
	KindReady
)

// Kind classifies the response, requiring exactly one recognized field.
// The companion's wire format has no explicit tag, so field presence is
// the dispatch key; anything ambiguous is rejected rather than ignored.
func (r *Response) Kind() (ResponseKind, error) {
	var kind ResponseKind
	count := 0
	if r.Ports != nil {
		kind = KindPorts
		count++
	}
	if r.Printers != nil {
		kind = KindPrinters
		count++
	}
	if r.Error != nil {
		kind = KindError
		count++
	}
	if r.Ready != nil {
		kind = KindReady
		count++
	}
	if count != 1 {
		return 0, ErrMalformedResponse
	}
	return kind, nil
}

// DecodeResponse parses the nested response envelope.
func DecodeResponse(encoded string) (*Response, error) {
	var resp Response
	if err := json.Unmarshal([]byte(encoded), &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &resp, nil
}
