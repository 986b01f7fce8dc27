// Package schema shapes raw exchange payloads into the uniform request and
// result contract delivered to context callbacks.
package schema

// Result is the uniform output envelope. Channel is set for streaming
// deliveries, Callname for scheduled ones. Exactly one of Result and Errors
// is populated per delivered instance.
type Result struct {
	Channel  string `json:"channel,omitempty"`
	Callname string `json:"callname,omitempty"`
	TraceID  string `json:"trace_id,omitempty"`
	Result   any    `json:"result,omitempty"`
	Errors   any    `json:"errors,omitempty"`
}

// IsError reports whether the envelope carries an error payload.
func (r Result) IsError() bool {
	return r.Errors != nil
}

// Request is the shaped request handed to an operation handle.
type Request struct {
	Callname string `json:"callname"`
	Payload  any    `json:"payload,omitempty"`
}
