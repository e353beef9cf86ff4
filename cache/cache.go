// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package cache provides a thread-safe LRU cache for validated, compiled
// expressions.
//
// Entries are keyed by the expression text together with its input and
// output types, so the same text compiled for different records is cached
// separately. GetOrCreate is atomic per key: concurrent callers asking for the
// same missing key share a single create.
//
// # Example
//
//	c := cache.New[*Compiled](1024)
//	compiled, hit, err := c.GetOrCreate(ctx, key, compile)
package cache

import (
	"container/list"
	"context"
	"fmt"
	"reflect"
	"sync"

	"golang.org/x/sync/singleflight"
)

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 1024

// Key identifies a cached expression.
type Key struct {
	Expression string
	Input      reflect.Type
	Output     reflect.Type
}

// flightKey renders k for singleflight, which groups by string.
func (k Key) flightKey() string {
	return fmt.Sprintf("%s\x00%s\x00%s", typeKey(k.Input), typeKey(k.Output), k.Expression)
}

func typeKey(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.PkgPath() + "|" + t.String()
}

type entry[V any] struct {
	key   Key
	value V
}

type result[V any] struct {
	value V
	hit   bool
}

// Cache is a thread-safe LRU (Least Recently Used) cache.
// Once the capacity is reached, the least recently accessed entry is evicted.
//
// Safe for concurrent use by multiple goroutines.
type Cache[V any] struct {
	mu       sync.RWMutex
	capacity int
	ll       *list.List
	items    map[Key]*list.Element

	group singleflight.Group
}

// New creates a new LRU cache with the given capacity.
// If capacity <= 0, DefaultCapacity is used.
func New[V any](capacity int) *Cache[V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache[V]{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[Key]*list.Element, capacity),
	}
}

// Get retrieves a value from the cache and marks it most recently used.
func (c *Cache[V]) Get(key Key) (V, bool) {
	c.mu.RLock()
	el, ok := c.items[key]
	if ok && c.ll.Front() == el {
		v := el.Value.(*entry[V]).value
		c.mu.RUnlock()
		return v, true
	}
	c.mu.RUnlock()
	if !ok {
		var zero V
		return zero, false
	}

	// Promote under the write lock; the entry may have been evicted meanwhile.
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok = c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*entry[V]).value, true
}

// Set inserts or replaces a value, evicting the least recently used entry
// when the cache is full.
func (c *Cache[V]) Set(key Key, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*entry[V]).value = value
		c.ll.MoveToFront(el)
		return
	}

	if c.ll.Len() >= c.capacity {
		c.evictLocked()
	}

	c.items[key] = c.ll.PushFront(&entry[V]{key: key, value: value})
}

// GetOrCreate returns the cached value for key, calling create on a miss.
//
// Concurrent callers for the same missing key wait for a single create; hit
// reports whether the value was already cached. Errors are returned to every
// waiter and are not cached. A caller whose ctx ends stops waiting and gets
// ctx.Err(), while the create it may share keeps running for the others.
func (c *Cache[V]) GetOrCreate(ctx context.Context, key Key, create func() (V, error)) (value V, hit bool, err error) {
	if v, ok := c.Get(key); ok {
		return v, true, nil
	}
	if err := ctx.Err(); err != nil {
		var zero V
		return zero, false, err
	}

	ch := c.group.DoChan(key.flightKey(), func() (any, error) {
		// re-check inside the flight: a previous flight may have just stored it
		if v, ok := c.Get(key); ok {
			return result[V]{value: v, hit: true}, nil
		}
		v, err := create()
		if err != nil {
			return nil, err
		}
		c.Set(key, v)
		return result[V]{value: v}, nil
	})

	select {
	case <-ctx.Done():
		var zero V
		return zero, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			var zero V
			return zero, false, res.Err
		}
		r := res.Val.(result[V])
		return r.value, r.hit, nil
	}
}

// Len returns the number of entries currently in the cache.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	n := len(c.items)
	c.mu.RUnlock()
	return n
}

// Capacity returns the maximum number of entries the cache can hold.
func (c *Cache[V]) Capacity() int {
	return c.capacity
}

// Invalidate removes a single entry from the cache.
func (c *Cache[V]) Invalidate(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.ll.Remove(el)
		delete(c.items, key)
	}
}

// Clear removes all entries from the cache.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.items = make(map[Key]*list.Element, c.capacity)
}

// evictLocked removes the least recently used entry.
// Must be called with c.mu held for writing.
func (c *Cache[V]) evictLocked() {
	el := c.ll.Back()
	if el == nil {
		return
	}
	c.ll.Remove(el)
	delete(c.items, el.Value.(*entry[V]).key)
}
