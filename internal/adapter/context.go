// Package adapter runs the per-context workers: a scheduled call adapter
// issuing configured operations on a cadence, and a streaming channel
// adapter routing inbound subscription messages. Both deliver shaped
// results to the context callback.
package adapter

import (
	"context"
	"fmt"
	"time"

	"quotra/internal/schema"
)

// Handle is the operation-dispatch capability a context drives. The fanout
// facade implements it for REST-style contexts.
type Handle interface {
	Name() string
	Call(ctx context.Context, callname string, args ...any) (any, error)
}

// Shutdowner is implemented by handles that need teardown.
type Shutdowner interface {
	Shutdown()
}

// EndpointFunc is a directly callable endpoint: it receives the shaped
// request and returns the raw result.
type EndpointFunc func(ctx context.Context, req schema.Request) (any, error)

// DirectCaller lets a handle expose per-callname callables. A direct
// endpoint beats the override table, which beats the literal callname.
type DirectCaller interface {
	Endpoint(callname string) (EndpointFunc, bool)
}

// EndpointOverrider maps configured callnames to the concrete endpoint the
// handle wants invoked instead.
type EndpointOverrider interface {
	EndpointOverrides() map[string]string
}

// StreamHandle is the persistent-subscription capability a context drives.
type StreamHandle interface {
	Name() string
	// ConnectWS establishes the connection and pumps inbound messages into
	// the matching subscription until ctx is cancelled or delivery fails.
	ConnectWS(ctx context.Context, subs []ChannelSub) error
	// Context returns the handle's own context object, passed to the
	// callback alongside each streamed result.
	Context() any
}

// ChannelSub binds one channel to its expected result type and delivery
// sink. One exists per configured subscription per context.
type ChannelSub struct {
	Channel    string
	ResultType string
	Deliver    func(channel string, raw any) error
}

// CallSpec configures one scheduled call. Zero Delay and Priority mean the
// call runs inline on every loop pass.
type CallSpec struct {
	Arguments any           `json:"arguments,omitempty"`
	Delay     time.Duration `json:"delay,omitempty"`
	Priority  int           `json:"priority,omitempty"`
}

// Credentials carries the secrets a handle needs to authenticate.
type Credentials struct {
	APIKey    string
	APISecret string
}

// Callback receives every shaped result: once per completed call and once
// per inbound streaming message.
type Callback func(res schema.Result, ctx any)

// HandleFactory builds the operation handle for a context at Run time.
type HandleFactory func(ctx context.Context, c *Context) (Handle, error)

// StreamFactory builds the streaming handle for a context at Run time.
type StreamFactory func(ctx context.Context, c *Context) (StreamHandle, error)

// Context is one logical API target: its handle factories, static
// configuration, credentials, callback, scheduled calls and subscriptions.
// Contexts are supplied once at startup and are immutable afterwards except
// for Inst, the back-reference the scheduled adapter installs so strategies
// can reach it.
type Context struct {
	Name          string
	NewHandle     HandleFactory
	NewStream     StreamFactory
	Conf          map[string]any
	Credentials   Credentials
	Callback      Callback
	Calls         map[string]CallSpec
	Subscriptions map[string]string
	Shaper        *schema.Shaper

	// Inst is installed by the scheduled call adapter on Run.
	Inst *APIAdapter
}

func (c *Context) validate() error {
	if c == nil {
		return fmt.Errorf("context is nil")
	}
	if c.Name == "" {
		return fmt.Errorf("context name is required")
	}
	if c.Callback == nil {
		return fmt.Errorf("context %s: callback is required", c.Name)
	}
	return nil
}

func (c *Context) shaper() *schema.Shaper {
	if c.Shaper != nil {
		return c.Shaper
	}
	return schema.NewShaper(schema.DefaultRegistry())
}
