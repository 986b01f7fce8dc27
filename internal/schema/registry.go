package schema

import (
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Prototype returns a fresh pointer to the payload type expected for a
// callname or channel. The shaper decodes raw data into it.
type Prototype func() any

type entry struct {
	proto  Prototype
	schema *jsonschema.Schema
}

// Registry maps callnames and channel names to their expected result shapes.
// Registration happens at startup; lookups are concurrent.
type Registry struct {
	mu       sync.RWMutex
	results  map[string]entry
	requests map[string]*jsonschema.Schema
}

func NewRegistry() *Registry {
	return &Registry{
		results:  make(map[string]entry),
		requests: make(map[string]*jsonschema.Schema),
	}
}

// Register binds a callname or channel to its expected payload prototype.
func (r *Registry) Register(name string, proto Prototype) {
	r.mu.Lock()
	r.results[name] = entry{proto: proto}
	r.mu.Unlock()
}

// RegisterWithSchema additionally compiles a JSON Schema document the raw
// payload must satisfy before decoding.
func (r *Registry) RegisterWithSchema(name string, proto Prototype, schemaDoc string) error {
	compiled, err := compileSchema(name, schemaDoc)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.results[name] = entry{proto: proto, schema: compiled}
	r.mu.Unlock()
	return nil
}

// RegisterRequest binds a callname to a JSON Schema its request payload must
// satisfy. Calls without a registered request schema pass through unshaped.
func (r *Registry) RegisterRequest(callname string, schemaDoc string) error {
	compiled, err := compileSchema("request:"+callname, schemaDoc)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.requests[callname] = compiled
	r.mu.Unlock()
	return nil
}

func (r *Registry) result(name string) (entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.results[name]
	return e, ok
}

func (r *Registry) request(callname string) (*jsonschema.Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.requests[callname]
	return s, ok
}

// Names returns every registered result name, for diagnostics.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.results))
	for name := range r.results {
		out = append(out, name)
	}
	return out
}

func compileSchema(name, doc string) (*jsonschema.Schema, error) {
	doc = strings.TrimSpace(doc)
	if doc == "" {
		return nil, fmt.Errorf("schema document for %q is empty", name)
	}
	compiler := jsonschema.NewCompiler()
	url := "mem:///" + name + ".json"
	if err := compiler.AddResource(url, strings.NewReader(doc)); err != nil {
		return nil, fmt.Errorf("adding schema for %q failed: %w", name, err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compiling schema for %q failed: %w", name, err)
	}
	return compiled, nil
}
