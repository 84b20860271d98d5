package sessionstore

import (
	"container/list"

	"github.com/haasonsaas/assistant-core/pkg/models"
)

// lru is a fixed-capacity, read-through-safe least-recently-used cache
// keyed by session id. It is not safe for concurrent use on its own — the
// owning Store guards every call with its own mutex, matching the
// teacher's convention of hand-rolled data structures rather than an
// imported generic LRU library (no pack example imports one; container/list
// is already used elsewhere in the pack for similar fixed-size structures).
type lru struct {
	capacity int
	ll       *list.List
	items    map[string]*list.Element
}

type lruEntry struct {
	key   string
	value *models.Session
}

func newLRU(capacity int) *lru {
	if capacity <= 0 {
		capacity = 1
	}
	return &lru{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element, capacity),
	}
}

func (c *lru) get(key string) (*models.Session, bool) {
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*lruEntry).value, true
}

// put inserts or refreshes key and evicts the least-recently-used entry
// when the cache is at capacity; eviction is silent (read-through to the
// backing store covers an evicted session on next Get).
func (c *lru) put(key string, value *models.Session) {
	if el, ok := c.items[key]; ok {
		el.Value.(*lruEntry).value = value
		c.ll.MoveToFront(el)
		return
	}
	el := c.ll.PushFront(&lruEntry{key: key, value: value})
	c.items[key] = el
	if c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.items, oldest.Value.(*lruEntry).key)
		}
	}
}

func (c *lru) remove(key string) {
	if el, ok := c.items[key]; ok {
		c.ll.Remove(el)
		delete(c.items, key)
	}
}
