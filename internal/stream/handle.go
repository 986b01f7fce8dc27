package stream

import (
	"context"
	"encoding/json"
	"fmt"

	"quotra/internal/adapter"
	"quotra/internal/logger"
)

// Decoder turns one raw websocket message into the payload handed to the
// subscription sink. The default decodes JSON into generic values.
type Decoder func(msg []byte) (any, error)

func defaultDecoder(msg []byte) (any, error) {
	var out any
	if err := json.Unmarshal(msg, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Handle adapts a Client to the streaming adapter's capability: it routes
// each inbound message to the subscription registered for its channel.
type Handle struct {
	name   string
	client *Client
	decode Decoder
	ctxObj map[string]any
}

// NewHandle wraps client. ctxObj is the handle's own context object,
// delivered to the callback with every streamed result.
func NewHandle(name string, client *Client, ctxObj map[string]any) *Handle {
	if ctxObj == nil {
		ctxObj = map[string]any{"name": name}
	}
	return &Handle{
		name:   name,
		client: client,
		decode: defaultDecoder,
		ctxObj: ctxObj,
	}
}

// SetDecoder replaces the message decoder. Must be called before ConnectWS.
func (h *Handle) SetDecoder(d Decoder) {
	if d != nil {
		h.decode = d
	}
}

func (h *Handle) Name() string { return h.name }

func (h *Handle) Context() any { return h.ctxObj }

// ConnectWS runs the connection, delivering each message to the matching
// channel subscription. Messages on channels without a subscription are
// logged and dropped; a delivery failure stops the connection.
func (h *Handle) ConnectWS(ctx context.Context, subs []adapter.ChannelSub) error {
	byChannel := make(map[string]adapter.ChannelSub, len(subs))
	for _, sub := range subs {
		byChannel[sub.Channel] = sub
	}
	return h.client.Run(ctx, func(channel string, msg []byte) error {
		sub, ok := byChannel[channel]
		if !ok {
			logger.Debugf("[%s] no subscription for channel %q; message dropped", h.name, channel)
			return nil
		}
		raw, err := h.decode(msg)
		if err != nil {
			return fmt.Errorf("decoding message on channel %q failed: %w", channel, err)
		}
		return sub.Deliver(channel, raw)
	})
}

// Stats exposes the underlying connection counters.
func (h *Handle) Stats() Stats { return h.client.Stats() }
