// Package types provides shared type definitions for the repoassist index.
//
// This package defines the domain types passed between the walker, chunker,
// index maintainer, embedding updater and search engine.
//
// # Chunks
//
// An AtomicChunk is produced directly by the chunker. It covers a line span
// of one file and carries the ParentID of the syntax node whose children
// produced it:
//
//	atomic := types.AtomicChunk{
//	    StartLine:  10,
//	    EndLine:    24,
//	    TokenCount: 180,
//	    Parent:     types.NodeParentID(1, 0, 4096),
//	}
//
// A Chunk is an agglomerated row of the persisted index. Its ContentHash is
// computed with HashText over the trimmed text of the final span, never over
// pre-merge fragments:
//
//	row.ContentHash = types.HashText(spanText)
//
// An embedding attached to a row is only trusted while the row's
// ContentHash is unchanged.
//
// # Parse Outcomes
//
// Parser providers return a ParseOutcome tagged with one of ParseParsed,
// ParseUnsupported or ParseFailed. Callers switch on the status instead of
// inspecting errors:
//
//	switch outcome.Status {
//	case types.ParseParsed:
//	    walk(outcome.Root)
//	case types.ParseUnsupported:
//	    lineChunks()
//	case types.ParseFailed:
//	    warn(outcome.Err)
//	}
//
// # Warnings
//
// Recoverable conditions (unsupported files, parse failures, oversized
// leaves, embedding failures) are collected as Warning values and surfaced
// at the end of a run rather than aborting it.
package types
