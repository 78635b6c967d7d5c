package gateway

import "sync"

// listeners is a registry of callbacks keyed by registration order.
type listeners[T any] struct {
	mu     sync.Mutex
	fns    map[uint64]func(T)
	nextID uint64
}

func (l *listeners[T]) add(fn func(T)) func() {
	l.mu.Lock()
	if l.fns == nil {
		l.fns = make(map[uint64]func(T))
	}
	id := l.nextID
	l.nextID++
	l.fns[id] = fn
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.fns, id)
			l.mu.Unlock()
		})
	}
}

func (l *listeners[T]) notify(v T) {
	l.mu.Lock()
	fns := make([]func(T), 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}
