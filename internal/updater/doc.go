// Package updater fills in missing chunk embeddings.
//
// Rows without an embedding are read back from disk span by span, prefixed
// with a short "File: <path> | Lines: a-b" header and sent to the embedding
// service on a bounded worker pool. Results are written one row at a time by
// a single writer, each write conditional on the row still holding the
// content hash the text was read for.
//
// # Basic Usage
//
//	u := updater.New(store, emb, root, updater.Options{
//	    Workers:           4,
//	    RequestsPerSecond: 10,
//	})
//
//	stats, err := u.Update(ctx, 0)
//	if err != nil {
//	    return err
//	}
//	for _, w := range stats.Warnings {
//	    fmt.Println(w)
//	}
//
// # Failure Handling
//
// Retries of transient service errors happen inside the embedder (see
// embedder.Retrying). A row that still fails is left without an embedding,
// recorded as an embedding_failure warning and picked up again by the next
// run; it never aborts the run. Rows whose text on disk no longer matches
// their hash are skipped as stale_chunk until the next index run.
package updater
