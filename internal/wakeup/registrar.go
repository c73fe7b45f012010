package wakeup

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

// TagSyncPending is the registration tag used for the pending-downloads
// drain. Foreground and daemon must agree on it.
const TagSyncPending = "sync-pending-downloads"

// ErrUnsupported indicates the wake-up capability is disabled on this
// deployment. Callers degrade to the next trigger in their priority order
// instead of failing the operation.
var ErrUnsupported = errors.New("wakeup: capability not supported")

// Registrar tracks sync-tag registrations inside the daemon. A registered
// tag fires once on the next connectivity restoration and is then cleared,
// so re-registration after a drain attempt is part of the contract.
type Registrar struct {
	supported bool

	mu   sync.Mutex
	tags map[string]struct{}
}

// NewRegistrar builds a registrar. When supported is false every
// registration fails with ErrUnsupported.
func NewRegistrar(supported bool) *Registrar {
	return &Registrar{
		supported: supported,
		tags:      make(map[string]struct{}),
	}
}

// Supported reports whether sync-tag registration is available.
func (r *Registrar) Supported() bool {
	return r.supported
}

// Register records a tag. Registering an already-registered tag is a no-op,
// which makes the foreground's defensive re-registration safe.
func (r *Registrar) Register(tag string) error {
	if !r.supported {
		return ErrUnsupported
	}
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return errors.New("wakeup: empty tag")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tags[tag] = struct{}{}
	return nil
}

// Registered reports whether a tag is currently pending.
func (r *Registrar) Registered(tag string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tags[strings.TrimSpace(tag)]
	return ok
}

// Tags returns the pending tags in sorted order.
func (r *Registrar) Tags() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.tags))
	for tag := range r.tags {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// Consume removes and returns all pending tags. The daemon calls this when a
// trigger condition fires; tags that still have work re-register afterwards.
func (r *Registrar) Consume() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.tags))
	for tag := range r.tags {
		out = append(out, tag)
	}
	r.tags = make(map[string]struct{})
	sort.Strings(out)
	return out
}
