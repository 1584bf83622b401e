// Package cache defines the URL-keyed entry store. Every cached URL maps to a
// directory <schema>/<host>/<escaped path segments>/ holding a `metadata`
// record and a `body<ext>` payload. The metadata record is the commit marker:
// an entry is a hit iff its metadata exists, so callers must write the body
// first and the metadata last. The store exposes those primitives (plus a
// per-key commit lock) and leaves the ordering to the download protocol.
// Bodies live on the local filesystem by default or in an S3-compatible
// bucket when a remote endpoint is configured; metadata always stays local.
package cache
