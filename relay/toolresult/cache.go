// Package toolresult holds the process-wide LRU cache mapping tool_use ids to
// their last known tool_result content. It exists for session recovery:
// when a backend rejects a conversation because a referenced tool_use has no
// matching tool_result, the recovery controller splices the cached content
// back into history. Sharing across unrelated requests is deliberate;
// session continuity crosses request boundaries.
package toolresult

import (
	"container/list"
	"sync"
)

// Cache is a bounded LRU map from tool_use_id to tool_result content.
// Entries are overwritten, never merged.
type Cache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	entries  map[string]*list.Element
}

type entry struct {
	id      string
	content any
}

// NewCache returns an LRU cache bounded to capacity entries.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	return &Cache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element, capacity),
	}
}

// Put records the latest result content for a tool_use id, evicting the least
// recently used entry when full.
func (c *Cache) Put(toolUseID string, content any) {
	if toolUseID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[toolUseID]; ok {
		el.Value.(*entry).content = content
		c.order.MoveToFront(el)
		return
	}
	c.entries[toolUseID] = c.order.PushFront(&entry{id: toolUseID, content: content})
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*entry).id)
	}
}

// Get returns the cached content for a tool_use id and refreshes its recency.
func (c *Cache) Get(toolUseID string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[toolUseID]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*entry).content, true
}

// Len reports the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
