package ingest

import "sync"

// docLocks hands out one mutex per document id so ingest and delete for the
// same document serialize while different documents run concurrently.
// Entries are never reaped; the map grows with the number of distinct
// documents seen in-process, which stays small.
type docLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newDocLocks() *docLocks {
	return &docLocks{locks: make(map[string]*sync.Mutex)}
}

func (d *docLocks) lock(docID string) *sync.Mutex {
	d.mu.Lock()
	m, ok := d.locks[docID]
	if !ok {
		m = &sync.Mutex{}
		d.locks[docID] = m
	}
	d.mu.Unlock()
	m.Lock()
	return m
}
