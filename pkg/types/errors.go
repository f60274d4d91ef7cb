package types

import "errors"

// Pipeline errors. Only ErrConfigMissing and ErrNotInRepository abort a run;
// the others classify a single file and are recorded as warnings.
var (
	ErrConfigMissing       = errors.New("configuration missing")
	ErrNotInRepository     = errors.New("not inside a git repository")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrParseFailure        = errors.New("parse failure")
	ErrOversizedFile       = errors.New("file exceeds oversized-file limit")
)

// Domain errors for type validation
var (
	ErrInvalidChunkID   = errors.New("invalid chunk ID")
	ErrInvalidRank      = errors.New("rank must be >= 1")
	ErrInvalidScore     = errors.New("score must be between -1 and 1")
	ErrInvalidLineRange = errors.New("line_start must be positive and <= line_end")
	ErrMissingFilePath  = errors.New("file path is required")
	ErrNegativeTokens   = errors.New("token count cannot be negative")
)
