// Package download implements the cache protocol on top of cache.Store and an
// upstream.Fetcher: hit/miss checks, redirect-chain resolution, forced
// re-downloads and the write ordering that keeps partial entries invisible.
// A body is always stored before the metadata record that names it, and a
// redirect target is committed before the stub that points at it, so a reader
// never observes a hit whose bytes are missing.
package download
