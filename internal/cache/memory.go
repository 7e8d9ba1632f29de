package cache

import (
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	entry     Entry
	expiresAt time.Time
}

// MemoryCache — SessionCache в памяти процесса. Используется, когда Redis
// не сконфигурирован (один инстанс шлюза), и в тестах.
// Просроченные записи удаляются лениво при чтении и при Sweep.
type MemoryCache struct {
	mu     sync.Mutex
	items  map[string]memoryItem
	byUser map[string]map[string]struct{}
	now    func() time.Time
}

// NewMemoryCache создаёт пустой кэш с системными часами.
func NewMemoryCache() *MemoryCache {
	return NewMemoryCacheWithClock(time.Now)
}

// NewMemoryCacheWithClock создаёт кэш с заданным источником времени.
func NewMemoryCacheWithClock(now func() time.Time) *MemoryCache {
	return &MemoryCache{
		items:  make(map[string]memoryItem),
		byUser: make(map[string]map[string]struct{}),
		now:    now,
	}
}

func (c *MemoryCache) Set(_ context.Context, sessionID string, e *Entry, ttl time.Duration) error {
	if sessionID == "" {
		return ErrEmptyKey
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Перезапись под тем же ключом другим пользователем не должна оставлять
	// висячую ссылку в индексе прежнего.
	if old, ok := c.items[sessionID]; ok {
		c.unindexLocked(old.entry.UserID(), sessionID)
	}

	cp := *e
	if cp.User != nil {
		u := *cp.User
		cp.User = &u
	}

	c.items[sessionID] = memoryItem{entry: cp, expiresAt: c.now().Add(ttl)}

	if uid := cp.UserID(); uid != "" {
		set, ok := c.byUser[uid]
		if !ok {
			set = make(map[string]struct{})
			c.byUser[uid] = set
		}
		set[sessionID] = struct{}{}
	}

	return nil
}

func (c *MemoryCache) Get(_ context.Context, sessionID string) (*Entry, bool, error) {
	if sessionID == "" {
		return nil, false, ErrEmptyKey
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.items[sessionID]
	if !ok {
		return nil, false, nil
	}

	if !c.now().Before(it.expiresAt) {
		c.deleteLocked(sessionID, it)
		return nil, false, nil
	}

	cp := it.entry
	if cp.User != nil {
		u := *cp.User
		cp.User = &u
	}

	return &cp, true, nil
}

func (c *MemoryCache) EvictBySession(_ context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrEmptyKey
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if it, ok := c.items[sessionID]; ok {
		c.deleteLocked(sessionID, it)
	}

	return nil
}

func (c *MemoryCache) EvictByUser(_ context.Context, userID string) error {
	if userID == "" {
		return ErrEmptyKey
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for sid := range c.byUser[userID] {
		delete(c.items, sid)
	}
	delete(c.byUser, userID)

	return nil
}

// Sweep удаляет все просроченные записи и возвращает их количество.
func (c *MemoryCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for sid, it := range c.items {
		if !now.Before(it.expiresAt) {
			c.deleteLocked(sid, it)
			n++
		}
	}

	return n
}

// Len — число записей, включая ещё не выметенные просроченные.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *MemoryCache) Close() error { return nil }

func (c *MemoryCache) deleteLocked(sessionID string, it memoryItem) {
	delete(c.items, sessionID)
	c.unindexLocked(it.entry.UserID(), sessionID)
}

func (c *MemoryCache) unindexLocked(userID, sessionID string) {
	if userID == "" {
		return
	}

	set, ok := c.byUser[userID]
	if !ok {
		return
	}

	delete(set, sessionID)
	if len(set) == 0 {
		delete(c.byUser, userID)
	}
}

var (
	_ SessionCache = (*MemoryCache)(nil)
	_ SessionCache = (*RedisCache)(nil)
)
