package chunker

import (
	"path/filepath"

	"github.com/dshills/repoassist/pkg/types"
)

// Agglomerate merges adjacent atomic chunks into rows.
//
// A chunk extends the current run only when it shares the run's parent and
// the run's token count stays within maxTokens; otherwise a new run starts.
// There is no lookahead. Content hashes are computed once per closed run
// over its trimmed span text.
func Agglomerate(path string, atomic []types.AtomicChunk, lines []string, maxTokens int) []*types.Chunk {
	rows := make([]*types.Chunk, 0, len(atomic))
	var run *types.Chunk

	for _, a := range atomic {
		if run != nil && a.Parent == run.Parent && run.TokenCount+a.TokenCount <= maxTokens {
			run.StartLine = min(run.StartLine, a.StartLine)
			run.EndLine = max(run.EndLine, a.EndLine)
			run.TokenCount += a.TokenCount
			run.Members++
			continue
		}

		run = &types.Chunk{
			FilePath:     path,
			RelativePath: filepath.FromSlash(path),
			StartLine:    a.StartLine,
			EndLine:      a.EndLine,
			TokenCount:   a.TokenCount,
			Parent:       a.Parent,
			Members:      1,
		}
		rows = append(rows, run)
	}

	for _, row := range rows {
		row.ContentHash = types.HashText(SpanText(lines, row.StartLine, row.EndLine))
	}

	return rows
}
