// Package tools defines the tool contract, the registry, and the execution
// pipeline every tool call passes through: argument validation, policy
// check, optional confirmation, cache lookup, execution, cache store.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/sidekick/pkg/models"
)

// Spec describes a tool to the registry, the model prompt, and the policy
// layer. Cacheable is explicit: a tool participates in the result cache only
// when it declares itself read-only.
type Spec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"schema"`
	Cacheable   bool            `json:"cacheable"`

	// NeedsNetwork marks tools that reach beyond the local machine. The
	// gate denies them while allow_network is false.
	NeedsNetwork bool `json:"needs_network,omitempty"`

	// WritesFiles routes the call through write policy: path rules,
	// risk grading, confirm_write.
	WritesFiles bool `json:"writes_files,omitempty"`

	// ExecutesCommands routes the call through command policy.
	ExecutesCommands bool `json:"executes_commands,omitempty"`

	// Timeout overrides the executor default when positive.
	Timeout time.Duration `json:"-"`
}

// Tool is a callable adapter. Execute returns a ToolResult even on failure;
// a Go error is reserved for infrastructure breakage the model should never
// see raw.
type Tool interface {
	Spec() Spec
	Execute(ctx context.Context, args map[string]any) *models.ToolResult
}

// Registry holds the tool set for one session. It is populated at startup
// from the built-in adapters; plugin hosts may add more.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	compiled map[string]*jsonschema.Schema
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:    make(map[string]Tool),
		compiled: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool, compiling its argument schema once.
func (r *Registry) Register(tool Tool) error {
	spec := tool.Spec()
	if spec.Name == "" {
		return fmt.Errorf("tool has no name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[spec.Name]; exists {
		return fmt.Errorf("tool %q already registered", spec.Name)
	}
	schema := spec.Schema
	if len(schema) == 0 {
		schema = json.RawMessage(`{"type":"object"}`)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(spec.Name+".json", bytes.NewReader(schema)); err != nil {
		return fmt.Errorf("tool %q schema: %w", spec.Name, err)
	}
	compiled, err := compiler.Compile(spec.Name + ".json")
	if err != nil {
		return fmt.Errorf("tool %q schema: %w", spec.Name, err)
	}
	r.tools[spec.Name] = tool
	r.compiled[spec.Name] = compiled
	return nil
}

// Get returns the tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// ListFilter narrows List output. Zero value lists everything.
type ListFilter struct {
	CacheableOnly bool
}

// List returns the registered specs sorted by name.
func (r *Registry) List(filter ListFilter) []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]Spec, 0, len(r.tools))
	for _, tool := range r.tools {
		spec := tool.Spec()
		if filter.CacheableOnly && !spec.Cacheable {
			continue
		}
		specs = append(specs, spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// ValidateArgs checks args against the tool's schema. Unknown tools fail
// with E_NO_TOOL; schema violations, including unknown fields, fail with
// E_INVALID_ARGS.
func (r *Registry) ValidateArgs(name string, args map[string]any) *models.ToolErrorInfo {
	r.mu.RLock()
	schema, ok := r.compiled[name]
	r.mu.RUnlock()
	if !ok {
		return &models.ToolErrorInfo{
			Code:    models.CodeNoTool,
			Message: fmt.Sprintf("unknown tool %q", name),
		}
	}
	if args == nil {
		args = map[string]any{}
	}
	// Round-trip through JSON so numeric types match what the schema
	// library expects regardless of how the args were produced.
	raw, err := json.Marshal(args)
	if err != nil {
		return &models.ToolErrorInfo{
			Code:    models.CodeInvalidArgs,
			Message: fmt.Sprintf("arguments not serializable: %v", err),
		}
	}
	var normalized any
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return &models.ToolErrorInfo{
			Code:    models.CodeInvalidArgs,
			Message: fmt.Sprintf("arguments not decodable: %v", err),
		}
	}
	if err := schema.Validate(normalized); err != nil {
		return &models.ToolErrorInfo{
			Code:    models.CodeInvalidArgs,
			Message: fmt.Sprintf("invalid arguments for %s: %v", name, err),
		}
	}
	return nil
}

// ObjectSchema builds the standard argument schema shape: an object with the
// given properties, required list, and unknown fields rejected.
func ObjectSchema(properties map[string]any, required ...string) json.RawMessage {
	schema := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return raw
}
