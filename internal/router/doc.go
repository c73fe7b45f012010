// Package router exposes the local application surface over HTTP. Each route
// class gets the fetch strategy that matches how stale it may be: documents
// favor the cache, legal pages favor the network, navigations pin the cached
// entry point, and leftovers serve stale while revalidating.
package router
