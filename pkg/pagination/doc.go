// Package pagination splits large fetch windows for backends that cap
// their page size.
//
// A paging engine asks for whatever window the viewport needs, which after
// a jump or a reset can span several pages at once. BatchFetcher wraps any
// paging.DataSource, cuts such a window into MaxChunk-sized chunks, fetches
// them with a bounded worker pool and stitches the results back together:
//
//	source := client.NewSource[Article](c, "/v1/articles", nil)
//	batched := pagination.NewBatchFetcher(source, pagination.DefaultConfig(), logger)
//	engine, err := paging.New[Article, Row, client.PageMeta](batched, mapper, nil, paging.DefaultConfig())
//
// The batch fetcher:
//   - Passes windows of at most MaxChunk items straight through
//   - Applies a per-chunk timeout
//   - Stops at the first short chunk, which marks the end of the sequence
//   - Fails the whole fetch when any chunk fails
package pagination
