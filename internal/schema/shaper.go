package schema

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
	"github.com/shopspring/decimal"
)

// Shaper converts raw payloads to and from the uniform contract. One shaper
// is shared read-only across the adapters of a context.
type Shaper struct {
	reg        *Registry
	newTraceID func() string
}

func NewShaper(reg *Registry) *Shaper {
	if reg == nil {
		reg = NewRegistry()
	}
	return &Shaper{reg: reg, newTraceID: uuid.NewString}
}

// ShapeRequest validates data against the registered request schema for
// callname, when one exists, and wraps it into a Request.
func (s *Shaper) ShapeRequest(callname string, data any) (Request, error) {
	if schema, ok := s.reg.request(callname); ok {
		normalized, err := normalizeJSON(data)
		if err != nil {
			return Request{}, &ShapingError{Callname: callname, Data: data, Err: err}
		}
		if err := schema.Validate(normalized); err != nil {
			return Request{}, &ShapingError{Callname: callname, Data: data, Err: err}
		}
	}
	return Request{Callname: callname, Payload: data}, nil
}

// ShapeResult decodes a raw call result into the payload registered for
// callname. A raw mapping carrying a non-empty "errors" member produces an
// error-only Result; success and error payloads are never both populated.
func (s *Shaper) ShapeResult(callname string, raw any) (Result, error) {
	return s.shape(callname, "", raw)
}

// ShapeChannelResult decodes an inbound streaming message for a channel.
func (s *Shaper) ShapeChannelResult(channel string, raw any) (Result, error) {
	return s.shape("", channel, raw)
}

func (s *Shaper) shape(callname, channel string, raw any) (Result, error) {
	if errs, ok := extractErrors(raw); ok {
		return Result{
			Channel:  channel,
			Callname: callname,
			TraceID:  s.newTraceID(),
			Errors:   errs,
		}, nil
	}

	name := callname
	if channel != "" {
		name = channel
	}
	ent, ok := s.reg.result(name)
	if !ok {
		return Result{}, &ShapingError{
			Callname: callname,
			Channel:  channel,
			Data:     raw,
			Err:      fmt.Errorf("no result shape registered for %q", name),
		}
	}

	if ent.schema != nil {
		normalized, err := normalizeJSON(raw)
		if err != nil {
			return Result{}, &ShapingError{Callname: callname, Channel: channel, Data: raw, Err: err}
		}
		if err := ent.schema.Validate(normalized); err != nil {
			return Result{}, &ShapingError{Callname: callname, Channel: channel, Data: raw, Err: err}
		}
	}

	target := ent.proto()
	if err := decodePayload(raw, target); err != nil {
		return Result{}, &ShapingError{Callname: callname, Channel: channel, Data: raw, Err: err}
	}

	return Result{
		Channel:  channel,
		Callname: callname,
		TraceID:  s.newTraceID(),
		Result:   target,
	}, nil
}

// extractErrors pulls an error payload out of a raw mapping, mirroring APIs
// that report failures inside an otherwise well-formed response body.
func extractErrors(raw any) (any, bool) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, false
	}
	errs, ok := m["errors"]
	if !ok || errs == nil {
		return nil, false
	}
	if inner, ok := errs.(map[string]any); ok && len(inner) == 0 {
		return nil, false
	}
	if inner, ok := errs.([]any); ok && len(inner) == 0 {
		return nil, false
	}
	return errs, true
}

func decodePayload(raw, target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "json",
		WeaklyTypedInput: true,
		DecodeHook:       decimalDecodeHook,
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}

var decimalType = reflect.TypeOf(decimal.Decimal{})

// decimalDecodeHook accepts strings and numbers for decimal.Decimal fields.
func decimalDecodeHook(from, to reflect.Type, data any) (any, error) {
	if to != decimalType {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		return decimal.NewFromString(v)
	case float64:
		return decimal.NewFromFloat(v), nil
	case float32:
		return decimal.NewFromFloat32(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case json.Number:
		return decimal.NewFromString(v.String())
	default:
		return data, nil
	}
}

// normalizeJSON round-trips a value through encoding/json so schema
// validation sees plain maps, slices and float64 numbers.
func normalizeJSON(data any) (any, error) {
	buf, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(buf, &out); err != nil {
		return nil, err
	}
	return out, nil
}
