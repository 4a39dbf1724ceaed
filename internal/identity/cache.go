package identity

import "sync"

// fileIDs is the signature -> id cache of one file.
type fileIDs struct {
	mu  sync.RWMutex
	ids map[string]string
}

func (f *fileIDs) get(key string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	id, ok := f.ids[key]
	return id, ok
}

func (f *fileIDs) put(key, id string) {
	f.mu.Lock()
	f.ids[key] = id
	f.mu.Unlock()
}
