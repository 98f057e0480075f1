// Package index holds the in-memory chronological index of safety events.
//
// The index is an unbalanced binary search tree keyed by the event
// timestamp (seconds since epoch). It is a read cache derived from the
// durable store: it is populated once at startup by replaying the store in
// ascending order, grown by one node per persisted event, and never pruned
// or persisted.
//
// Because timestamps arrive in non-decreasing order, the tree degenerates
// into a right-leaning chain. That shape is kept on purpose and is exposed
// through Height; insert and traversal are iterative so chain depth never
// grows the goroutine stack.
//
// Equal keys are not stored twice: the first record for a timestamp wins and
// later ones are dropped silently. Drops by Insert are counted by Dropped;
// Rebuild reports its skipped entries to the caller instead.
//
// All methods are safe for concurrent use. Insert and Rebuild take the write
// lock; AllSorted copies the contents under the read lock.
package index
