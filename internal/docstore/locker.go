package docstore

import "sync"

// KeyedMutex serializes operations per key. Mutating store operations take
// the slug's lock so that check-then-act sequences (create conflict checks,
// trash transitions, version numbering) cannot interleave for the same
// document. Entries are reference-counted and removed when unused, so the
// map does not grow with the number of slugs ever seen.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyLock)}
}

// Lock acquires the lock for key and returns the corresponding unlock
// function. Typical use:
//
//	unlock := locks.Lock(slug)
//	defer unlock()
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
