package keychain

import (
	"fmt"
	"sort"
	"sync"
)

type memoryItem struct {
	scope   Scope
	account string
	data    []byte
	access  Accessibility
}

type itemID struct {
	service string
	group   string
	account string
}

// MemoryBackend is an in-memory implementation of Backend for testing.
type MemoryBackend struct {
	mu    sync.RWMutex
	items map[itemID]*memoryItem
}

var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{items: make(map[itemID]*memoryItem)}
}

// matching returns the items visible to scope, optionally narrowed to one
// account. Callers must hold mu.
func (b *MemoryBackend) matching(scope Scope, account string) []itemID {
	var ids []itemID
	for id, it := range b.items {
		if account != "" && id.account != account {
			continue
		}
		if scope.Matches(it.scope) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].service != ids[j].service {
			return ids[i].service < ids[j].service
		}
		if ids[i].group != ids[j].group {
			return ids[i].group < ids[j].group
		}
		return ids[i].account < ids[j].account
	})
	return ids
}

func (b *MemoryBackend) Exists(scope Scope, account string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.matching(scope, account)) > 0, nil
}

func (b *MemoryBackend) Insert(scope Scope, account string, data []byte, access Accessibility) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := itemID{service: scope.Service, group: scope.AccessGroup, account: account}
	if _, ok := b.items[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateItem, account)
	}
	b.items[id] = &memoryItem{
		scope:   scope,
		account: account,
		data:    append([]byte(nil), data...),
		access:  access,
	}
	return nil
}

func (b *MemoryBackend) Update(scope Scope, account string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := b.matching(scope, account)
	if len(ids) == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, account)
	}
	for _, id := range ids {
		b.items[id].data = append([]byte(nil), data...)
	}
	return nil
}

func (b *MemoryBackend) Read(scope Scope, account string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ids := b.matching(scope, account)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, account)
	}
	return append([]byte(nil), b.items[ids[0]].data...), nil
}

func (b *MemoryBackend) Delete(scope Scope, account string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range b.matching(scope, account) {
		delete(b.items, id)
	}
	return nil
}

func (b *MemoryBackend) DeleteAll(scope Scope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range b.matching(scope, "") {
		delete(b.items, id)
	}
	return nil
}

func (b *MemoryBackend) Accounts(scope Scope) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ids := b.matching(scope, "")
	accounts := make([]string, 0, len(ids))
	for _, id := range ids {
		accounts = append(accounts, id.account)
	}
	return accounts, nil
}

// Accessibility returns the accessibility an item was inserted with.
// Only the memory backend can answer this; it exists for tests.
func (b *MemoryBackend) Accessibility(scope Scope, account string) (Accessibility, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ids := b.matching(scope, account)
	if len(ids) == 0 {
		return WhenUnlocked, false
	}
	return b.items[ids[0]].access, true
}
