// Package indexer keeps the persisted chunk table in line with a repository.
//
// An index run walks the repository, decides per file whether anything must
// change, chunks the files that did change and merges the result into
// storage. Runs are incremental and idempotent: indexing an unchanged tree
// writes nothing.
//
// # Basic Usage
//
//	idx := indexer.New(ch, store, indexer.Options{Workers: 4})
//
//	stats, err := idx.Index(ctx, walker.New(root, ignore))
//	if err != nil {
//	    return err
//	}
//
//	fmt.Printf("Indexed %d files in %v\n", stats.FilesIndexed, stats.Duration)
//
// # Change Detection
//
// Each file is classified before any chunking happens:
//
//  1. Unchanged: size and mtime match the stored record (within
//     ModTimeTolerance) and the token budget is the same
//  2. Touched: mtime moved but the SHA-256 of the content did not; only the
//     stored mtime is refreshed
//  3. Changed: the file is re-chunked and its rows replaced in a single
//     transaction
//  4. Skipped: the file cannot be chunked; a warning is recorded and any old
//     rows are removed
//
// Rows whose content hash survives a re-chunk keep their embedding, so only
// genuinely new spans need to be embedded again.
//
// # Pruning
//
// Files that were indexed before but are no longer yielded by the walk are
// removed. Pruning only happens after a complete walk: an unreadable
// directory or a cancelled context leaves existing rows alone.
//
// # Concurrency
//
// Chunking runs on Options.Workers goroutines; writes are applied serially
// in walk order. Only one run may be active per Indexer; a concurrent call
// returns ErrIndexingInProgress.
package indexer
