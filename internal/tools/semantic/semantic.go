// Package semantic implements search_semantic over the external indexer's
// vector store.
package semantic

import (
	"context"
	"fmt"

	"github.com/haasonsaas/sidekick/internal/providers"
	"github.com/haasonsaas/sidekick/internal/tools"
	"github.com/haasonsaas/sidekick/internal/vectorstore"
	"github.com/haasonsaas/sidekick/pkg/models"
)

const defaultTopK = 8

// SearchTool embeds the query and asks the vector store for the nearest code
// chunks. The indexer that populates the store runs out of process.
type SearchTool struct {
	store    *vectorstore.Store
	embedder providers.Embedder
}

// NewSearchTool creates a search_semantic tool.
func NewSearchTool(store *vectorstore.Store, embedder providers.Embedder) *SearchTool {
	return &SearchTool{store: store, embedder: embedder}
}

func (t *SearchTool) Spec() tools.Spec {
	return tools.Spec{
		Name:        "search_semantic",
		Description: "Find code chunks related to a natural-language query using the semantic index.",
		Cacheable:   true,
		Schema: tools.ObjectSchema(map[string]any{
			"query": map[string]any{"type": "string", "minLength": 1},
			"top_k": map[string]any{"type": "integer", "minimum": 1, "maximum": 50},
		}, "query"),
	}
}

func (t *SearchTool) Execute(ctx context.Context, args map[string]any) *models.ToolResult {
	query, _ := args["query"].(string)
	topK := defaultTopK
	if v, ok := args["top_k"].(float64); ok {
		topK = int(v)
	}

	embedding, err := t.embedder.Embed(ctx, query)
	if err != nil {
		return models.Fail(providers.ErrorCode(err), fmt.Sprintf("embed query: %v", err))
	}
	chunks, err := t.store.Search(ctx, embedding, topK)
	if err != nil {
		return models.Fail(models.CodeTool, fmt.Sprintf("vector search: %v", err))
	}

	matches := make([]any, 0, len(chunks))
	for _, c := range chunks {
		matches = append(matches, map[string]any{
			"path":       c.Path,
			"start_line": c.StartLine,
			"end_line":   c.EndLine,
			"text":       c.Text,
			"score":      c.Score,
		})
	}
	return models.Succeed(map[string]any{
		"query":   query,
		"matches": matches,
		"count":   len(matches),
	})
}
