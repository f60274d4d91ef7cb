// Package chunker divides source files into token-budgeted chunks for
// embedding and search.
//
// Chunking happens in two steps. ChunkFile turns one file into an ordered
// sequence of atomic chunks, and Agglomerate merges adjacent atomic chunks
// into the rows stored in the index.
//
// # Basic Usage
//
//	c := chunker.New(chunker.Options{MaxTokens: 250}, tok, detect.New(), parser.NewRegistry())
//	file, err := c.ChunkFile(ctx, "internal/app/app.go", content)
//	if err != nil {
//	    if w, ok := chunker.WarningFor("internal/app/app.go", err); ok {
//	        warnings = append(warnings, w) // skipped file
//	    }
//	    return err
//	}
//	rows := chunker.Agglomerate(file.Path, file.Atomic, file.Lines, 250)
//
// # Syntax-Bounded Descent
//
// When a parser exists for the file's type, the tree is descended from the
// root. A node whose text fits the budget becomes one atomic chunk whose
// parent identity is the node's parent. Larger nodes are split into their
// children. A leaf that is still too large is emitted whole and reported
// as an oversized leaf, since there is no way to split it further.
//
// Rows are line granular, so sibling nodes sharing a source line are fused
// into one atomic chunk. This keeps rows of a file non-overlapping.
//
// # Line Fallback
//
// Files without a parser (plain text, markdown, configuration) are cut
// into blocks of whole lines. Every block shares the FileRoot parent.
//
// # Agglomeration
//
// Agglomerate makes one greedy, order-preserving pass: a chunk extends the
// current run only if it has the same parent and the run stays within the
// budget. Content hashes are computed on the final run text.
//
// # Oversized Files
//
// Files whose token count exceeds Options.OversizedFileLimit are rejected,
// confirmed through Options.Confirm, or included, depending on the policy.
// Files are never truncated.
package chunker
