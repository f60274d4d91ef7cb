// Package walker enumerates candidate files of a git repository.
//
// ResolveRoot locates the repository containing a start path. NewIgnore
// combines the repository's .gitignore files with configured glob patterns
// into a single predicate, and Walker.Files lazily yields repo-relative file
// paths while refusing to descend into ignored directories.
//
// # Basic Usage
//
//	root, err := walker.ResolveRoot(".")
//	if err != nil {
//	    return err
//	}
//
//	ignore, err := walker.NewIgnore(root, cfg.IgnorePatterns)
//	if err != nil {
//	    return err
//	}
//
//	for path, err := range walker.New(root, ignore).Files(ctx) {
//	    if err != nil {
//	        continue // unreadable directory
//	    }
//	    fmt.Println(path)
//	}
//
// Symbolic links are never followed, so link cycles cannot cause unbounded
// traversal.
package walker
