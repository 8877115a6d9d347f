package tools

import (
	"context"
	"testing"

	"github.com/haasonsaas/sidekick/pkg/models"
)

type echoTool struct {
	spec Spec
	fn   func(ctx context.Context, args map[string]any) *models.ToolResult
}

func (t *echoTool) Spec() Spec { return t.spec }

func (t *echoTool) Execute(ctx context.Context, args map[string]any) *models.ToolResult {
	if t.fn != nil {
		return t.fn(ctx, args)
	}
	return models.Succeed(map[string]any{"echo": args})
}

func newEchoTool(name string, cacheable bool) *echoTool {
	return &echoTool{spec: Spec{
		Name:        name,
		Description: "echoes its arguments",
		Cacheable:   cacheable,
		Schema: ObjectSchema(map[string]any{
			"path":  map[string]any{"type": "string", "minLength": 1},
			"limit": map[string]any{"type": "integer", "minimum": 0},
		}, "path"),
	}}
}

func TestRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(newEchoTool("echo", false)); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, ok := r.Get("echo"); !ok {
		t.Fatal("registered tool not found")
	}
	if err := r.Register(newEchoTool("echo", false)); err == nil {
		t.Fatal("duplicate registration should fail")
	}
}

func TestListSortedAndFiltered(t *testing.T) {
	r := NewRegistry()
	r.Register(newEchoTool("zeta", true))
	r.Register(newEchoTool("alpha", false))

	specs := r.List(ListFilter{})
	if len(specs) != 2 || specs[0].Name != "alpha" {
		t.Fatalf("list = %+v", specs)
	}
	cacheable := r.List(ListFilter{CacheableOnly: true})
	if len(cacheable) != 1 || cacheable[0].Name != "zeta" {
		t.Fatalf("cacheable list = %+v", cacheable)
	}
}

func TestValidateArgsRequiredField(t *testing.T) {
	r := NewRegistry()
	r.Register(newEchoTool("echo", false))

	if errInfo := r.ValidateArgs("echo", map[string]any{"path": "a.txt"}); errInfo != nil {
		t.Fatalf("valid args rejected: %+v", errInfo)
	}
	errInfo := r.ValidateArgs("echo", map[string]any{"limit": 3})
	if errInfo == nil || errInfo.Code != models.CodeInvalidArgs {
		t.Fatalf("missing required field should be E_INVALID_ARGS, got %+v", errInfo)
	}
}

func TestValidateArgsRejectsUnknownFields(t *testing.T) {
	r := NewRegistry()
	r.Register(newEchoTool("echo", false))

	errInfo := r.ValidateArgs("echo", map[string]any{"path": "a.txt", "bogus": true})
	if errInfo == nil || errInfo.Code != models.CodeInvalidArgs {
		t.Fatalf("unknown field should be E_INVALID_ARGS, got %+v", errInfo)
	}
}

func TestValidateArgsTypeMismatch(t *testing.T) {
	r := NewRegistry()
	r.Register(newEchoTool("echo", false))

	errInfo := r.ValidateArgs("echo", map[string]any{"path": "a.txt", "limit": "ten"})
	if errInfo == nil || errInfo.Code != models.CodeInvalidArgs {
		t.Fatalf("type mismatch should be E_INVALID_ARGS, got %+v", errInfo)
	}
	// Integral float is fine: JSON numbers arrive as float64.
	if errInfo := r.ValidateArgs("echo", map[string]any{"path": "a.txt", "limit": float64(10)}); errInfo != nil {
		t.Fatalf("integral float rejected: %+v", errInfo)
	}
}

func TestValidateArgsUnknownTool(t *testing.T) {
	r := NewRegistry()
	errInfo := r.ValidateArgs("ghost", map[string]any{})
	if errInfo == nil || errInfo.Code != models.CodeNoTool {
		t.Fatalf("unknown tool should be E_NO_TOOL, got %+v", errInfo)
	}
}
