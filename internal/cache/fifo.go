package cache

import (
	"container/list"
	"sync"
)

// FIFOCache is bounded by size and evicts in insertion order. Reads never
// change an entry's position; setting an existing key re-inserts it as newest.
type FIFOCache[T any] struct {
	mu      sync.Mutex
	maxSize int
	items   map[string]*list.Element
	order   *list.List // front is newest
}

type entry[T any] struct {
	key  string
	data T
}

var _ Cache[int] = (*FIFOCache[int])(nil)

func NewFIFOCache[T any](maxSize int) *FIFOCache[T] {
	if maxSize < 1 {
		maxSize = 1
	}
	return &FIFOCache[T]{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		order:   list.New(),
	}
}

func (c *FIFOCache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		return elem.Value.(*entry[T]).data, true
	}
	var zero T
	return zero, false
}

func (c *FIFOCache[T]) Set(key string, data T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
	c.items[key] = c.order.PushFront(&entry[T]{key: key, data: data})

	for c.order.Len() > c.maxSize {
		c.removeElement(c.order.Back())
	}
}

func (c *FIFOCache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
}

// DeleteIf removes key only while match accepts its current value. It lets a
// caller drop the entry it read earlier without clobbering a newer one.
func (c *FIFOCache[T]) DeleteIf(key string, match func(T) bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.items[key]
	if !ok || !match(elem.Value.(*entry[T]).data) {
		return false
	}
	c.removeElement(elem)
	return true
}

// Take returns and removes the entry in one step.
func (c *FIFOCache[T]) Take(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.items[key]
	if !ok {
		var zero T
		return zero, false
	}
	c.removeElement(elem)
	return elem.Value.(*entry[T]).data, true
}

func (c *FIFOCache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *FIFOCache[T]) removeElement(elem *list.Element) {
	delete(c.items, elem.Value.(*entry[T]).key)
	c.order.Remove(elem)
}
