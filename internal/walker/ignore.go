package walker

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"

	"github.com/dshills/repoassist/internal/config"
	"github.com/dshills/repoassist/pkg/types"
)

// alwaysIgnored are excluded regardless of repository rules
var alwaysIgnored = []string{".git", config.DirName}

// Predicate decides whether a repo-relative, slash separated path is excluded
type Predicate interface {
	Match(path string, isDir bool) bool
}

// ResolveRoot returns the root of the git repository containing start.
// It fails with types.ErrNotInRepository when start is not inside one.
func ResolveRoot(start string) (string, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", start, err)
	}

	repo, err := git.PlainOpenWithOptions(abs, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return "", fmt.Errorf("%w: %s", types.ErrNotInRepository, abs)
		}
		return "", fmt.Errorf("failed to open repository: %w", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		// Bare repositories have no worktree to index
		return "", fmt.Errorf("%w: %v", types.ErrNotInRepository, err)
	}

	return wt.Filesystem.Root(), nil
}

// AlwaysIgnored reports whether any segment of a repo-relative, slash
// separated path names the VCS or index directory.
func AlwaysIgnored(path string) bool {
	for seg := range strings.SplitSeq(path, "/") {
		if slices.Contains(alwaysIgnored, seg) {
			return true
		}
	}
	return false
}

// Ignore is the combined predicate of VCS ignore rules and configured patterns
type Ignore struct {
	matcher gitignore.Matcher
}

// NewIgnore reads .git/info/exclude and the .gitignore files under root,
// then appends the configured patterns, which use gitignore syntax and are
// anchored at root. Directories excluded by either source are not searched
// for further .gitignore files.
func NewIgnore(root string, patterns []string) (*Ignore, error) {
	always := make([]gitignore.Pattern, 0, len(alwaysIgnored))
	for _, p := range alwaysIgnored {
		always = append(always, gitignore.ParsePattern(p, nil))
	}

	configured := make([]gitignore.Pattern, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}
		configured = append(configured, gitignore.ParsePattern(p, nil))
	}

	fs := osfs.New(root)
	repoPatterns, err := readIgnoreFile(fs, nil, infoExcludeFile)
	if err != nil {
		return nil, err
	}
	repoPatterns, err = readIgnoreDir(fs, nil, repoPatterns, always, configured)
	if err != nil {
		return nil, fmt.Errorf("failed to read ignore files: %w", err)
	}

	ps := slices.Concat(always, repoPatterns, configured)
	return &Ignore{matcher: gitignore.NewMatcher(ps)}, nil
}

const (
	gitignoreFile   = ".gitignore"
	infoExcludeFile = ".git/info/exclude"
)

// readIgnoreDir appends the .gitignore of dir to ps, then recurses into
// each subdirectory that is not excluded by always, the patterns collected
// so far, or configured.
func readIgnoreDir(fs billy.Filesystem, dir []string, ps, always, configured []gitignore.Pattern) ([]gitignore.Pattern, error) {
	own, err := readIgnoreFile(fs, dir, gitignoreFile)
	if err != nil {
		return nil, err
	}
	ps = append(ps, own...)

	entries, err := fs.ReadDir(fs.Join(dir...))
	if err != nil {
		if len(dir) == 0 {
			return nil, err
		}
		// The walk reports unreadable directories
		return ps, nil
	}

	m := gitignore.NewMatcher(slices.Concat(always, ps, configured))
	for _, fi := range entries {
		if !fi.IsDir() {
			continue
		}
		child := append(slices.Clone(dir), fi.Name())
		if m.Match(child, true) {
			continue
		}
		if ps, err = readIgnoreDir(fs, child, ps, always, configured); err != nil {
			return nil, err
		}
	}
	return ps, nil
}

// readIgnoreFile parses one ignore file with patterns scoped to dir. A
// missing file or anything other than a regular file yields no patterns.
func readIgnoreFile(fs billy.Filesystem, dir []string, name string) ([]gitignore.Pattern, error) {
	path := fs.Join(append(slices.Clone(dir), name)...)
	fi, err := fs.Lstat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !fi.Mode().IsRegular() {
		return nil, nil
	}

	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var ps []gitignore.Pattern
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			continue
		}
		ps = append(ps, gitignore.ParsePattern(line, dir))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return ps, nil
}

// Match reports whether path is ignored
func (i *Ignore) Match(path string, isDir bool) bool {
	if path == "" || path == "." {
		return false
	}
	return i.matcher.Match(strings.Split(path, "/"), isDir)
}
