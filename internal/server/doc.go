// Package server hosts the Fiber HTTP service that lets people browse the
// cache: the generated index document, cached bodies looked up by URL, and
// the request ID middleware shared by every route. Diagnostics routes live in
// the routes subpackage so the serve command can mount them explicitly.
// Keep exports narrow and accept explicit dependencies.
package server
