// Package main provides kvtier, an HTTP key/value server with a sharded LRU
// cache in front of a durable store.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
