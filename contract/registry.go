package contract

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/stepforge/flowrt/core"
)

// Descriptor is a registered, typed output shape: its schema, a stable
// content hash, and the set of its opaque field names. Descriptors are
// immutable once created (§3 invariant).
type Descriptor struct {
	Name         string
	Schema       Schema
	Hash         string
	OpaqueFields []string
}

// Registry maps declared shape names to their Descriptor. It is process-wide
// and single-writer at registration time (§5: "writes are single-writer
// (decoration-time) ... no locking required under the single-threaded
// model" — we still guard with a mutex since Go schedules goroutines
// preemptively, unlike the cooperative runtime this is grounded on).
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]*Descriptor
	byHash  map[string]*Descriptor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*Descriptor),
		byHash: make(map[string]*Descriptor),
	}
}

// Register computes the schema's content hash and stores the descriptor.
// Re-registering the same name with a structurally identical schema is
// idempotent and returns the existing descriptor; a structurally different
// schema under the same name is a CompileError.
func (r *Registry) Register(name string, schema Schema) (*Descriptor, error) {
	hash, err := ContentHash(schema)
	if err != nil {
		return nil, &core.CompileError{Location: name, Reason: err.Error()}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byName[name]; ok {
		if existing.Hash != hash {
			return nil, &core.CompileError{
				Location: name,
				Reason:   fmt.Sprintf("contract %q already registered with a different schema (hash %s != %s)", name, existing.Hash, hash),
			}
		}
		return existing, nil
	}

	d := &Descriptor{
		Name:         name,
		Schema:       schema,
		Hash:         hash,
		OpaqueFields: schema.OpaqueFieldNames(),
	}
	r.byName[name] = d
	r.byHash[hash] = d
	return d, nil
}

// Lookup returns a registered descriptor by name.
func (r *Registry) Lookup(name string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byName[name]
	return d, ok
}

// ContentHash computes the first 12 hex characters of SHA-256 over the
// schema's canonical JSON (keys sorted, no whitespace). Identical schemas
// hash equal regardless of which declaration produced them, since the
// canonical form is built from maps — encoding/json sorts map[string]any
// keys lexicographically and emits no extraneous whitespace.
func ContentHash(s Schema) (string, error) {
	canon := canonicalize(s)
	data, err := json.Marshal(canon)
	if err != nil {
		return "", fmt.Errorf("canonicalize schema: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:12], nil
}

// canonicalize converts a Schema into a map-based representation so that
// json.Marshal's built-in key sorting for map[string]any produces a
// deterministic byte sequence independent of Go struct field order.
func canonicalize(s Schema) map[string]interface{} {
	m := map[string]interface{}{"kind": string(s.Kind)}
	if len(s.Enum) > 0 {
		m["enum"] = s.Enum
	}
	if s.Elem != nil {
		m["elem"] = canonicalize(*s.Elem)
	}
	if len(s.Fields) > 0 {
		fields := make([]map[string]interface{}, 0, len(s.Fields))
		for _, f := range s.Fields {
			fields = append(fields, map[string]interface{}{
				"name":   f.Name,
				"schema": canonicalize(f.Schema),
				"opaque": f.Opaque,
			})
		}
		m["fields"] = fields
	}
	return m
}
