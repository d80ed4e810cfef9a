// Package dodagcache implements the DODAG cache (spec Section 4.7): the
// ordered collection of known DODAG versions, keyed by
// (instanceID, dodagID, version), with lookup filters and stale-version
// purging.
package dodagcache

import (
	"log/slog"
	"net/netip"
	"sync"

	"rpld/internal/rpl/dodag"
)

// Cache holds every DODAG version this node currently knows about.
type Cache struct {
	logger *slog.Logger

	mu       sync.RWMutex
	versions []*dodag.Version
}

// New builds an empty Cache.
func New(logger *slog.Logger) (c *Cache) {
	return &Cache{logger: logger}
}

// Add registers a new DODAG version.
func (c *Cache) Add(v *dodag.Version) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.versions = append(c.versions, v)
}

// Remove drops v from the cache without poisoning or cleaning it up; callers
// that want that must do so first.
func (c *Cache) Remove(v *dodag.Version) {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.versions[:0]
	for _, cand := range c.versions {
		if cand != v {
			kept = append(kept, cand)
		}
	}

	c.versions = kept
}

// IsEmpty reports whether the cache holds no DODAG version.
func (c *Cache) IsEmpty() (empty bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.versions) == 0
}

// Filter narrows [Cache.GetDODAG]'s results. A nil field imposes no
// constraint on that field.
type Filter struct {
	DODAGID    *netip.Addr
	Version    *uint8
	InstanceID *uint8
	IsRoot     *bool
}

// GetDODAG returns every version matching f, in insertion order.
func (c *Cache) GetDODAG(f Filter) (matches []*dodag.Version) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, v := range c.versions {
		if f.DODAGID != nil && v.DODAGID() != *f.DODAGID {
			continue
		}

		if f.Version != nil && v.VersionNumber() != *f.Version {
			continue
		}

		if f.InstanceID != nil && v.InstanceID() != *f.InstanceID {
			continue
		}

		if f.IsRoot != nil && v.IsRoot() != *f.IsRoot {
			continue
		}

		matches = append(matches, v)
	}

	return matches
}

// GetActiveDODAG returns the single currently-active DODAG version, or nil
// if none is active. More than one active version is a bug elsewhere in the
// engine; this logs it rather than panicking, since the cache itself cannot
// prevent it.
func (c *Cache) GetActiveDODAG() (active *dodag.Version) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, v := range c.versions {
		if !v.Active() {
			continue
		}

		if active != nil {
			c.logger.Error("more than one active DODAG version", "dodag_id", v.DODAGID())

			continue
		}

		active = v
	}

	return active
}

// PurgeOldVersions poisons and removes every version strictly older than the
// most recent known version of the same dodagID, provided it is not the
// active version.
func (c *Cache) PurgeOldVersions() {
	c.mu.Lock()
	byID := make(map[netip.Addr][]*dodag.Version)
	for _, v := range c.versions {
		byID[v.DODAGID()] = append(byID[v.DODAGID()], v)
	}
	c.mu.Unlock()

	var stale []*dodag.Version

	for _, versions := range byID {
		if len(versions) < 2 {
			continue
		}

		mostRecent := versions[0]
		for _, v := range versions[1:] {
			if v.VersionCounter().Compare(mostRecent.VersionCounter()) > 0 {
				mostRecent = v
			}
		}

		for _, v := range versions {
			if v != mostRecent && !v.Active() {
				stale = append(stale, v)
			}
		}
	}

	for _, v := range stale {
		c.logger.Info("purging stale DODAG version", "dodag_id", v.DODAGID(), "version", v.VersionNumber())
		v.Poison(true)
		v.Cleanup()
		c.Remove(v)
	}
}

// PoisonAll poisons every known DODAG version, for use on shutdown.
func (c *Cache) PoisonAll() {
	c.mu.RLock()
	versions := append([]*dodag.Version(nil), c.versions...)
	c.mu.RUnlock()

	for _, v := range versions {
		v.Poison(true)
	}
}

// CleanupAll stops every known DODAG version's timers and empties the
// cache, for use on shutdown.
func (c *Cache) CleanupAll() {
	c.mu.Lock()
	versions := c.versions
	c.versions = nil
	c.mu.Unlock()

	for _, v := range versions {
		v.Cleanup()
	}
}

// All returns every known DODAG version, in insertion order.
func (c *Cache) All() (versions []*dodag.Version) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return append([]*dodag.Version(nil), c.versions...)
}
