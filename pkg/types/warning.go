package types

import "fmt"

// WarningKind classifies a recoverable condition met during a run
type WarningKind string

const (
	WarnUnsupportedFileType WarningKind = "unsupported_file_type"
	WarnParseFailure        WarningKind = "parse_failure"
	WarnOversizedLeaf       WarningKind = "oversized_leaf"
	WarnOversizedFile       WarningKind = "oversized_file"
	WarnEmbeddingFailure    WarningKind = "embedding_failure"
	WarnStaleChunk          WarningKind = "stale_chunk"
	WarnReadFailure         WarningKind = "read_failure"
	WarnWalk                WarningKind = "walk_error"
)

// Warning is a recoverable condition recorded during a run
type Warning struct {
	Kind      WarningKind
	FilePath  string
	StartLine int // zero when the warning concerns the whole file
	EndLine   int
	Message   string
}

// String formats the warning for display
func (w Warning) String() string {
	loc := w.FilePath
	if w.StartLine > 0 {
		loc = fmt.Sprintf("%s:%d-%d", w.FilePath, w.StartLine, w.EndLine)
	}
	if loc == "" {
		return fmt.Sprintf("[%s] %s", w.Kind, w.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", w.Kind, loc, w.Message)
}

// CountKind returns how many warnings of the given kind are in ws
func CountKind(ws []Warning, kind WarningKind) int {
	n := 0
	for _, w := range ws {
		if w.Kind == kind {
			n++
		}
	}
	return n
}
