// Package mcp implements the Model Context Protocol (MCP) server for repoassist.
//
// The server exposes one repository's index to AI coding assistants through
// four tools:
//   - index_repository: Bring the chunk index in line with the working tree
//   - update_embeddings: Embed chunks that have no vector yet
//   - search_code: Rank indexed chunks against a natural language query
//   - get_status: Report index statistics, the last runs and health
//
// MCP is JSON-RPC 2.0 over stdio. Stdout is reserved for protocol messages;
// all logging goes to stderr.
//
// # Basic Usage
//
//	repoassist serve
//
// # Tool: search_code
//
//	Request:
//	{
//	  "name": "search_code",
//	  "arguments": {
//	    "query": "retry with exponential backoff",
//	    "limit": 5,
//	    "path_pattern": "internal/*"
//	  }
//	}
//
//	Response:
//	{
//	  "results": [
//	    {
//	      "rank": 1,
//	      "score": 0.83,
//	      "file_path": "internal/embedder/retry.go",
//	      "start_line": 40,
//	      "end_line": 71,
//	      "content": "func (r *Retrying) GenerateEmbedding(...",
//	      "stale": false
//	    }
//	  ],
//	  "total_results": 1,
//	  "no_embeddings": false
//	}
//
// A result is stale when the file changed on disk since the chunk was
// indexed; its content is still the current text of the recorded lines.
//
// # MCP Client Configuration
//
//	{
//	  "mcpServers": {
//	    "repoassist": {
//	      "command": "/usr/local/bin/repoassist",
//	      "args": ["serve", "--root", "/path/to/repo"],
//	      "env": {
//	        "OPENAI_API_KEY": "your-api-key"
//	      }
//	    }
//	  }
//	}
//
// # Error Handling
//
// Tool failures are returned as MCPError values:
//   - -32602: Invalid params
//   - -32603: Internal error (database, filesystem, provider)
//   - -32002: An index or embedding run is already in progress
//   - -32003: No embedding provider is configured
//   - -32004: Empty query
package mcp
