// Package searcher answers free-text queries against the chunk index.
//
// The query is embedded with the same service that embedded the chunks and
// compared by cosine similarity against every stored embedding of that
// model. There is no approximate index: the scan is exhaustive, which is
// adequate for the chunk count of a single repository.
//
// # Basic Usage
//
//	s := searcher.NewSearcher(store, emb, root, searcher.Options{})
//
//	resp, err := s.Search(ctx, searcher.SearchRequest{
//	    Query:       "where are retries configured",
//	    Limit:       5,
//	    PathPattern: "internal/*",
//	})
//	if err != nil {
//	    return err
//	}
//	if resp.NoEmbeddings {
//	    fmt.Println("run `repoassist embed` first")
//	}
//	for _, r := range resp.Results {
//	    fmt.Printf("[%d] %s:%d-%d (%.3f)\n", r.Rank, r.FilePath, r.StartLine, r.EndLine, r.Score)
//	}
//
// # Results
//
// Results are ordered by descending similarity; equal scores are ordered by
// path and start line. Each result carries the span text read from disk at
// query time. When the file changed since it was indexed the result is
// still returned, with Stale set.
//
// Query embeddings are cached in an LRU keyed by the query text, so repeated
// queries do not call the embedding service again.
package searcher
