// Package singleflight coalesces concurrent loads of the same key.
package singleflight

import (
	"context"
	"fmt"
	"sync"
)

// Group runs fn at most once per key among concurrent callers. Other callers
// for the same key wait for the shared result.
//
// Concurrency notes:
//   - The first caller for a key becomes the leader and runs fn on its
//     goroutine. fn takes no context; callers close over whatever context
//     the load should use.
//   - Followers wait on c.done. Publishing (val, err) happens-before
//     close(c.done), so reads after <-done observe the final values.
//   - A follower whose ctx ends returns ctx.Err(); the leader keeps going.
//   - The key is forgotten as soon as the leader returns, so a caller that
//     arrives afterwards starts a new load and never sees a stale result.
type Group[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]*call[V]
}

type call[V any] struct {
	done chan struct{} // closed when val/err are published
	val  V
	err  error
}

// Do runs fn once for key. shared reports whether the result came from
// another caller's run.
func (g *Group[K, V]) Do(ctx context.Context, key K, fn func() (V, error)) (v V, shared bool, err error) {
	g.mu.Lock()
	if g.m == nil {
		g.m = make(map[K]*call[V])
	}
	if c, ok := g.m[key]; ok {
		g.mu.Unlock()

		select {
		case <-c.done:
			return c.val, true, c.err
		case <-ctx.Done():
			var zero V
			return zero, true, ctx.Err()
		}
	}

	c := &call[V]{done: make(chan struct{})}
	g.m[key] = c
	g.mu.Unlock()

	defer func() {
		// A panicking fn must still release followers.
		if r := recover(); r != nil {
			c.err = fmt.Errorf("singleflight: load panicked: %v", r)
			g.finish(key, c)
			panic(r)
		}
		g.finish(key, c)
	}()

	c.val, c.err = fn()
	return c.val, false, c.err
}

func (g *Group[K, V]) finish(key K, c *call[V]) {
	g.mu.Lock()
	delete(g.m, key)
	g.mu.Unlock()
	close(c.done)
}
