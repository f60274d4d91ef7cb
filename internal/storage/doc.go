// Package storage provides SQLite-based persistence for the chunk index.
//
// # Database Schema
//
// Tables:
//   - files: one record per indexed file (mod time, whole-file hash, token budget, tokenizer)
//   - chunks: agglomerated chunk rows with their content hash and optional embedding
//   - runs: counters and timing of index and embed runs
//   - run_warnings: warnings recorded by each run
//
// Modification times are stored as unix nanoseconds. Content hashes and
// embeddings are stored as BLOBs; embeddings are little-endian float32.
//
// # Writers
//
// The index maintainer replaces a file's rows with ReplaceFile, which runs
// in a single transaction so readers never observe a partially re-chunked
// file. Embeddings of rows whose content hash survives the re-chunk are
// copied onto the new rows inside the same transaction. The embedding updater writes with SetEmbedding, which succeeds only
// when the row still carries the content hash the vector was computed from:
//
//	err := db.SetEmbedding(ctx, chunk.ID, chunk.ContentHash, vector, model)
//	if errors.Is(err, storage.ErrStaleChunk) {
//	    // row was re-chunked meanwhile; the next run picks it up
//	}
//
// # Vector Search
//
// SearchVector scans every embedded row with a matching dimension and ranks
// by cosine similarity in Go. Filters narrow the scan with a GLOB over the
// file path, a minimum score and an embedding model.
//
// # Build Tags
//
// By default the package uses modernc.org/sqlite, a pure Go driver:
//
//	CGO_ENABLED=0 go build ./...
//
// The sqlite_cgo tag switches to github.com/mattn/go-sqlite3:
//
//	CGO_ENABLED=1 go build -tags sqlite_cgo ./...
package storage
