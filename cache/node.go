package cache

// node is an intrusive doubly linked list element owned by exactly one bucket.
type node struct {
	key string
	val string

	// head is MRU, tail is LRU.
	prev *node
	next *node
}
