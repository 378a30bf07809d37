package cache

import (
	"container/list"
	"sync"
)

type lruEntry[K comparable, V any] struct {
	key   K
	value V
}

// LRUManager is a keyed recency list. It never evicts on its own; callers
// ask for the oldest entry and decide what to do with it.
type LRUManager[K comparable, V any] struct {
	lruList *list.List
	items   map[K]*list.Element
	mu      sync.Mutex
}

func NewLRUManager[K comparable, V any]() *LRUManager[K, V] {
	return &LRUManager[K, V]{
		lruList: list.New(),
		items:   make(map[K]*list.Element),
	}
}

// Get returns the value for key and marks it most recently used.
func (l *LRUManager[K, V]) Get(key K) (V, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	elem, ok := l.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	l.lruList.MoveToFront(elem)
	return elem.Value.(*lruEntry[K, V]).value, true
}

// Put inserts or replaces key at the front.
func (l *LRUManager[K, V]) Put(key K, value V) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if elem, ok := l.items[key]; ok {
		elem.Value.(*lruEntry[K, V]).value = value
		l.lruList.MoveToFront(elem)
		return
	}
	l.items[key] = l.lruList.PushFront(&lruEntry[K, V]{key: key, value: value})
}

func (l *LRUManager[K, V]) Remove(key K) (V, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	elem, ok := l.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	l.lruList.Remove(elem)
	delete(l.items, key)
	return elem.Value.(*lruEntry[K, V]).value, true
}

// Back returns the least recently used entry.
func (l *LRUManager[K, V]) Back() (K, V, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	elem := l.lruList.Back()
	if elem == nil {
		var (
			k K
			v V
		)
		return k, v, false
	}
	e := elem.Value.(*lruEntry[K, V])
	return e.key, e.value, true
}

// Keys lists keys from most to least recently used.
func (l *LRUManager[K, V]) Keys() []K {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]K, 0, l.lruList.Len())
	for e := l.lruList.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*lruEntry[K, V]).key)
	}
	return out
}

func (l *LRUManager[K, V]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lruList.Len()
}
