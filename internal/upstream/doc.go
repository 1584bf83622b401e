// Package upstream issues the network requests behind a cache miss. It wraps a
// shared http.Client whose redirect following is disabled, so 301/302 responses
// reach the download protocol intact and every hop of a chain gets its own
// cache entry. The client trusts the system roots plus any extra PEM anchors
// configured for sites that omit intermediate certificates.
package upstream
