// Package cache is a small in-process cache whose entries are dropped by tag.
package cache

import (
	"strconv"
	"sync"
)

const TagProjectList = "pimm_project_list"

// ProjectTag is the tag of a single tracked project.
func ProjectTag(nid int64) string {
	return "pimm_project:" + strconv.FormatInt(nid, 10)
}

type entry struct {
	value any
	tags  []string
}

type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	byTag   map[string]map[string]struct{}
}

func New() *Cache {
	return &Cache{
		entries: make(map[string]entry),
		byTag:   make(map[string]map[string]struct{}),
	}
}

func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e.value, ok
}

func (c *Cache) Set(key string, value any, tags ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleteLocked(key)
	c.entries[key] = entry{value: value, tags: tags}
	for _, tag := range tags {
		keys, ok := c.byTag[tag]
		if !ok {
			keys = make(map[string]struct{})
			c.byTag[tag] = keys
		}
		keys[key] = struct{}{}
	}
}

// InvalidateTags removes every entry carrying any of the tags.
func (c *Cache) InvalidateTags(tags ...string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for _, tag := range tags {
		for key := range c.byTag[tag] {
			if _, ok := c.entries[key]; ok {
				c.deleteLocked(key)
				removed++
			}
		}
		delete(c.byTag, tag)
	}
	return removed
}

func (c *Cache) deleteLocked(key string) {
	e, ok := c.entries[key]
	if !ok {
		return
	}
	delete(c.entries, key)
	for _, tag := range e.tags {
		delete(c.byTag[tag], key)
	}
}
