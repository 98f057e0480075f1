package index

import (
	"sync"
	"sync/atomic"

	"cuida-monitor/internal/models"
)

// Entry is one (timestamp, payload) pair as returned by AllSorted.
type Entry struct {
	Key  int64            `json:"key"`
	Data models.EventData `json:"data"`
}

type node struct {
	key   int64
	value models.EventData
	left  *node
	right *node
}

// Stats is a point-in-time view of the tree.
type Stats struct {
	Size    int    `json:"size"`
	Height  int    `json:"height"`
	Dropped uint64 `json:"duplicates_dropped"`
}

// Chronological is the timestamp-ordered event index.
type Chronological struct {
	mu     sync.RWMutex
	root   *node
	size   int
	height int // depth of the deepest node, maintained on insert

	dropped     atomic.Uint64
	onDuplicate func(key int64)
}

// Option configures a Chronological.
type Option func(*Chronological)

// WithDuplicateHook registers fn to be called, outside the lock, each time
// an insert is dropped because its key already exists.
func WithDuplicateHook(fn func(key int64)) Option {
	return func(c *Chronological) {
		c.onDuplicate = fn
	}
}

// New returns an empty index.
func New(opts ...Option) *Chronological {
	c := &Chronological{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Insert adds data under key. If key is already present the call is a no-op
// apart from the duplicate counter; the stored payload is never replaced.
func (c *Chronological) Insert(key int64, data models.EventData) {
	c.mu.Lock()
	depth := insertNode(&c.root, key, data)
	if depth > 0 {
		c.size++
		c.height = max(c.height, depth)
	}
	c.mu.Unlock()

	if depth == 0 {
		c.recordDuplicate(key)
	}
}

// AllSorted returns every entry in strictly ascending key order. Each call
// builds a new slice; callers may keep or modify it.
func (c *Chronological) AllSorted() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Entry, 0, c.size)
	inorder(c.root, func(n *node) {
		out = append(out, Entry{Key: n.key, Data: n.value})
	})
	return out
}

// Rebuild replaces the whole tree with entries inserted in the given order
// and returns how many entries were skipped as duplicate keys. The new tree
// is built without holding the lock and swapped in at once, so readers see
// either the old or the new contents. Skipped entries are not added to
// Dropped and do not fire the duplicate hook.
func (c *Chronological) Rebuild(entries []Entry) int {
	var root *node
	size, h, skipped := 0, 0, 0
	for _, e := range entries {
		depth := insertNode(&root, e.Key, e.Data)
		if depth == 0 {
			skipped++
			continue
		}
		size++
		h = max(h, depth)
	}

	c.mu.Lock()
	c.root = root
	c.size = size
	c.height = h
	c.mu.Unlock()

	return skipped
}

// Len returns the number of stored entries.
func (c *Chronological) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.size
}

// Dropped returns how many inserts were discarded as duplicate keys.
func (c *Chronological) Dropped() uint64 {
	return c.dropped.Load()
}

// Height returns the number of nodes on the longest root-to-leaf path
// (0 for an empty tree). For ascending insertion it equals Len.
func (c *Chronological) Height() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.height
}

// Stats returns size, height and the duplicate counter.
func (c *Chronological) Stats() Stats {
	c.mu.RLock()
	s := Stats{Size: c.size, Height: c.height}
	c.mu.RUnlock()
	s.Dropped = c.dropped.Load()
	return s
}

func (c *Chronological) recordDuplicate(key int64) {
	c.dropped.Add(1)
	if c.onDuplicate != nil {
		c.onDuplicate(key)
	}
}

// insertNode walks down from *link and attaches a new node at the first
// empty slot, returning its depth (root = 1). It returns 0 without modifying
// the tree if key exists.
func insertNode(link **node, key int64, data models.EventData) int {
	depth := 1
	for *link != nil {
		n := *link
		switch {
		case key < n.key:
			link = &n.left
		case key > n.key:
			link = &n.right
		default:
			return 0
		}
		depth++
	}
	*link = &node{key: key, value: data}
	return depth
}

// inorder visits nodes left, self, right using an explicit stack.
func inorder(root *node, visit func(*node)) {
	var stack []*node
	n := root
	for n != nil || len(stack) > 0 {
		for n != nil {
			stack = append(stack, n)
			n = n.left
		}
		n = stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		visit(n)
		n = n.right
	}
}
