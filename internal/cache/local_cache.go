package cache

import (
	"sync"
	"time"
)

// LocalCache 进程内 TTL 缓存，挡在热路径查询前面。
//
// 读多写少的场景（订阅按提供方 ID 查找）用读写锁即可，
// 条目数超过上限时整体重置，避免维护 LRU 链表。
type LocalCache[V any] struct {
	mu      sync.RWMutex
	entries map[string]entry[V]
	maxSize int
	ttl     time.Duration
	done    chan struct{}
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// NewLocalCache 创建缓存并启动后台清理。
func NewLocalCache[V any](maxSize int, ttl time.Duration) *LocalCache[V] {
	c := &LocalCache[V]{
		entries: make(map[string]entry[V]),
		maxSize: maxSize,
		ttl:     ttl,
		done:    make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Get 返回未过期的缓存值。
func (c *LocalCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || time.Now().After(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set 写入缓存值，使用缓存默认 TTL。
func (c *LocalCache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// 超容量时整体丢弃，下一轮查询回源重建
	if len(c.entries) >= c.maxSize {
		c.entries = make(map[string]entry[V])
	}
	c.entries[key] = entry[V]{value: value, expiresAt: time.Now().Add(c.ttl)}
}

// Delete 删除缓存值。
func (c *LocalCache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len 返回当前条目数（含未清理的过期条目）。
func (c *LocalCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stop 停止后台清理。
func (c *LocalCache[V]) Stop() {
	close(c.done)
}

func (c *LocalCache[V]) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for key, e := range c.entries {
				if now.After(e.expiresAt) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		}
	}
}
