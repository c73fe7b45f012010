// Package cache stores fetched documents and core assets on disk, partitioned
// per tenant. Each entry is the raw response body keyed by the xxhash64 of
// its URL, with a JSON sidecar carrying the URL, content type, size, and
// fetch time. The cross-tenant lookup exists because a document cached under
// one tenant is still worth serving to another; only writes are tenant-bound.
package cache
