// Package dedupe maps upload fingerprints to the job that first carried them,
// so identical files are scored once.
package dedupe

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"sync/atomic"
)

// Fingerprint is the hex SHA-256 of data.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Index records which job owns a fingerprint.
type Index interface {
	// Claim records jobID as the owner of key unless key is already owned.
	// It returns the owning job id and whether key was already claimed.
	Claim(ctx context.Context, key, jobID string) (owner string, seen bool)

	// Release forgets key, e.g. when its job could not be queued.
	Release(ctx context.Context, key string)

	Size() int64
}

// node is an entry of the insertion-ordered list.
type node struct {
	key        string
	jobID      string
	prev, next *node
}

func (n *node) reset() {
	*n = node{}
}

// inMemoryIndex keeps entries in a doubly linked list, newest at head.
// Bounded mode (maxSize > 0) evicts the oldest entry; unbounded mode keeps
// everything.
type inMemoryIndex struct {
	mu       sync.Mutex
	byKey    map[string]*node
	head     *node
	tail     *node
	maxSize  int
	size     atomic.Int64
	nodePool sync.Pool
}

// NewInMemoryIndex creates an index with configuration options.
func NewInMemoryIndex(opts ...Option) Index {
	d := &inMemoryIndex{
		maxSize: 10000,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.byKey = make(map[string]*node)
	d.nodePool = sync.Pool{
		New: func() interface{} {
			return &node{}
		},
	}
	return d
}

// Claim implements Index.
func (d *inMemoryIndex) Claim(ctx context.Context, key, jobID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if n, ok := d.byKey[key]; ok {
		return n.jobID, true
	}
	if d.maxSize > 0 && len(d.byKey) >= d.maxSize {
		d.evictOldest()
	}

	n := d.nodePool.Get().(*node)
	n.key, n.jobID = key, jobID
	n.next = d.head
	if d.head != nil {
		d.head.prev = n
	}
	d.head = n
	if d.tail == nil {
		d.tail = n
	}
	d.byKey[key] = n
	d.size.Add(1)
	return jobID, false
}

// Release implements Index.
func (d *inMemoryIndex) Release(ctx context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if n, ok := d.byKey[key]; ok {
		d.unlink(n)
	}
}

// evictOldest drops the tail. Caller holds d.mu.
func (d *inMemoryIndex) evictOldest() {
	if d.tail != nil {
		d.unlink(d.tail)
	}
}

// unlink removes n from the list and map. Caller holds d.mu.
func (d *inMemoryIndex) unlink(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		d.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		d.tail = n.prev
	}
	delete(d.byKey, n.key)
	n.reset()
	d.nodePool.Put(n)
	d.size.Add(-1)
}

// Size returns the number of tracked fingerprints.
func (d *inMemoryIndex) Size() int64 {
	return d.size.Load()
}
