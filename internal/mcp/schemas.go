package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/repoassist/internal/searcher"
)

// indexRepositoryTool returns the tool definition for index_repository
func indexRepositoryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_repository",
		Description: "Bring the chunk index of the repository up to date. Only changed files are re-chunked; files removed or newly ignored are pruned.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"embed": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, fill missing embeddings after indexing",
					"default":     false,
				},
			},
		},
	}
}

// updateEmbeddingsTool returns the tool definition for update_embeddings
func updateEmbeddingsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "update_embeddings",
		Description: "Compute embeddings for indexed chunks that do not have one yet",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of chunks to embed in this call (0 = all)",
					"default":     0,
					"minimum":     0,
				},
			},
		},
	}
}

// searchCodeTool returns the tool definition for search_code
func searchCodeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_code",
		Description: "Semantic search over the repository. Returns code spans ranked by cosine similarity to the query.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Natural language description of the code to find",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return",
					"default":     searcher.DefaultLimit,
					"minimum":     1,
					"maximum":     searcher.MaxLimit,
				},
				"min_score": map[string]interface{}{
					"type":        "number",
					"description": "Minimum cosine similarity (-1.0 to 1.0)",
					"minimum":     -1.0,
					"maximum":     1.0,
				},
				"path_pattern": map[string]interface{}{
					"type":        "string",
					"description": "Glob over repo-relative paths (e.g., 'internal/*')",
				},
			},
			Required: []string{"query"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report index size, embedding coverage and the outcome of the last runs",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
