// Package cache memoizes aggregator answers for the lifetime of one run.
// Nothing here is ever written to disk.
package cache

import (
	gocache "github.com/patrickmn/go-cache"
)

// PresenceMemo remembers whether a service had items for a heading
type PresenceMemo struct {
	cache *gocache.Cache
}

// NewPresenceMemo creates an empty memo. Entries never expire within a run.
func NewPresenceMemo() *PresenceMemo {
	return &PresenceMemo{
		cache: gocache.New(gocache.NoExpiration, 0),
	}
}

// Get returns the remembered answer for service/heading
func (m *PresenceMemo) Get(service, heading string) (present bool, found bool) {
	val, found := m.cache.Get(Key(service, heading))
	if !found {
		return false, false
	}
	return val.(bool), true
}

// Set remembers an answer
func (m *PresenceMemo) Set(service, heading string, present bool) {
	m.cache.Set(Key(service, heading), present, gocache.DefaultExpiration)
}

// Len returns the number of remembered answers
func (m *PresenceMemo) Len() int {
	return m.cache.ItemCount()
}

// Key builds the memo key. Headings are kept exactly as queried.
func Key(service, heading string) string {
	return service + "\x00" + heading
}
