package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/repoassist/internal/embedder"
	"github.com/dshills/repoassist/internal/indexer"
	"github.com/dshills/repoassist/internal/searcher"
	"github.com/dshills/repoassist/internal/storage"
	"github.com/dshills/repoassist/internal/updater"
	"github.com/dshills/repoassist/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeIndexingInProgress = -32002 // Another run is already active
	ErrorCodeEmbedderMissing    = -32003 // No usable embedding provider
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
)

// maxWarnings bounds the warnings included in a tool response
const maxWarnings = 20

// handleIndexRepository handles the index_repository tool invocation
func (s *Server) handleIndexRepository(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	embed := getBoolDefault(args, "embed", false)

	stats, err := s.app.Index(ctx)
	if err != nil {
		if errors.Is(err, indexer.ErrIndexingInProgress) {
			return nil, newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", nil)
		}
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"run_id":            stats.RunID,
		"files_scanned":     stats.FilesScanned,
		"files_indexed":     stats.FilesIndexed,
		"files_unchanged":   stats.FilesUnchanged,
		"files_touched":     stats.FilesTouched,
		"files_skipped":     stats.FilesSkipped,
		"files_pruned":      stats.FilesPruned,
		"chunks_written":    stats.ChunksWritten,
		"embeddings_reused": stats.EmbeddingsReused,
		"walk_complete":     stats.WalkComplete,
		"duration_ms":       stats.Duration.Milliseconds(),
	}
	addWarnings(response, stats.Warnings)

	if embed {
		embedStats, err := s.app.Embed(ctx, 0)
		if err != nil {
			response["embedding_error"] = err.Error()
		} else {
			response["embeddings"] = embedResponse(embedStats)
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleUpdateEmbeddings handles the update_embeddings tool invocation
func (s *Server) handleUpdateEmbeddings(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	limit := getIntDefault(args, "limit", 0)
	if limit < 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit cannot be negative", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	stats, err := s.app.Embed(ctx, limit)
	if err != nil {
		return nil, s.embedError("embedding update failed", err)
	}

	return mcp.NewToolResultText(formatJSON(embedResponse(stats))), nil
}

// handleSearchCode handles the search_code tool invocation
func (s *Server) handleSearchCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	query := getStringDefault(args, "query", "")
	if query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", 0)
	if limit < 0 || limit > searcher.MaxLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("limit must be between 1 and %d", searcher.MaxLimit), map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	minScore := getFloatDefault(args, "min_score", 0)
	if minScore < -1 || minScore > 1 {
		return nil, newMCPError(ErrorCodeInvalidParams, "min_score must be between -1 and 1", map[string]interface{}{
			"param": "min_score",
			"value": minScore,
		})
	}

	resp, err := s.app.Search(ctx, searcher.SearchRequest{
		Query:       query,
		Limit:       limit,
		MinScore:    minScore,
		PathPattern: getStringDefault(args, "path_pattern", ""),
	})
	if err != nil {
		return nil, s.embedError("search failed", err)
	}

	results := make([]map[string]interface{}, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, map[string]interface{}{
			"rank":       r.Rank,
			"score":      r.Score,
			"file_path":  r.FilePath,
			"start_line": r.StartLine,
			"end_line":   r.EndLine,
			"content":    r.Content,
			"stale":      r.Stale,
		})
	}

	response := map[string]interface{}{
		"results":       results,
		"total_results": resp.TotalResults,
		"no_embeddings": resp.NoEmbeddings,
		"model":         resp.Model,
		"duration_ms":   resp.Duration.Milliseconds(),
	}
	if resp.NoEmbeddings {
		response["message"] = "The index has no embeddings yet. Use update_embeddings first."
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.app.Storage.GetStatus(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	cfg := s.app.Config
	embedding := map[string]interface{}{
		"provider":  cfg.Embedding.Provider,
		"available": s.app.Embedder != nil,
	}
	if s.app.Embedder != nil {
		embedding["model"] = s.app.Embedder.Model()
	} else if err := s.app.EmbedderErr(); err != nil {
		embedding["error"] = err.Error()
	}

	response := map[string]interface{}{
		"root":           cfg.Root,
		"schema_version": status.SchemaVersion,
		"max_tokens":     cfg.MaxTokens,
		"statistics": map[string]interface{}{
			"files_count":      status.FilesCount,
			"chunks_count":     status.ChunksCount,
			"embeddings_count": status.EmbeddingsCount,
			"embedding_models": status.EmbeddingModels,
			"index_size_mb":    fmt.Sprintf("%.2f", status.IndexSizeMB),
		},
		"health": map[string]interface{}{
			"database_accessible":  status.Health.DatabaseAccessible,
			"embeddings_available": status.Health.EmbeddingsAvailable,
			"embeddings_complete":  status.Health.EmbeddingsComplete,
		},
		"embedding": embedding,
	}
	if status.LastIndex != nil {
		response["last_index"] = runResponse(status.LastIndex)
	}
	if status.LastEmbed != nil {
		response["last_embed"] = runResponse(status.LastEmbed)
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

func (s *Server) embedError(message string, err error) error {
	switch {
	case errors.Is(err, embedder.ErrNoProviderEnabled):
		return newMCPError(ErrorCodeEmbedderMissing, "no embedding provider configured", map[string]interface{}{
			"error": err.Error(),
		})
	case errors.Is(err, updater.ErrUpdateInProgress):
		return newMCPError(ErrorCodeIndexingInProgress, "embedding update already in progress", nil)
	case errors.Is(err, searcher.ErrEmptyQuery):
		return newMCPError(ErrorCodeEmptyQuery, "query cannot be empty", nil)
	}
	s.logger.Warn(message, "error", err)
	return newMCPError(ErrorCodeInternalError, message, map[string]interface{}{
		"error": err.Error(),
	})
}

func embedResponse(stats *updater.Statistics) map[string]interface{} {
	response := map[string]interface{}{
		"run_id":      stats.RunID,
		"candidates":  stats.Candidates,
		"embedded":    stats.Embedded,
		"failed":      stats.Failed,
		"stale":       stats.Stale,
		"cleared":     stats.Cleared,
		"duration_ms": stats.Duration.Milliseconds(),
	}
	addWarnings(response, stats.Warnings)
	return response
}

func runResponse(run *storage.Run) map[string]interface{} {
	r := map[string]interface{}{
		"id":          run.ID,
		"finished_at": run.FinishedAt.Format(time.RFC3339),
		"duration_ms": run.Duration().Milliseconds(),
		"warnings":    len(run.Warnings),
	}
	switch run.Kind {
	case storage.RunIndex:
		r["files_indexed"] = run.FilesIndexed
		r["files_skipped"] = run.FilesSkipped
		r["files_pruned"] = run.FilesPruned
		r["chunks_written"] = run.ChunksWritten
	case storage.RunEmbed:
		r["embeddings_written"] = run.EmbeddingsWritten
		r["embeddings_failed"] = run.EmbeddingsFailed
	}
	if run.Error != "" {
		r["error"] = run.Error
	}
	return r
}

// addWarnings includes the first maxWarnings warnings in a response
func addWarnings(response map[string]interface{}, warnings []types.Warning) {
	if len(warnings) == 0 {
		return
	}
	shown := warnings[:min(len(warnings), maxWarnings)]
	out := make([]string, len(shown))
	for i, w := range shown {
		out[i] = w.String()
	}
	response["warnings"] = out
	response["warning_count"] = len(warnings)
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getFloatDefault extracts a number parameter with a default value
func getFloatDefault(args map[string]interface{}, key string, defaultValue float64) float64 {
	switch val := args[key].(type) {
	case float64:
		return val
	case int:
		return float64(val)
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}
