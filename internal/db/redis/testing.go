package redis

import "github.com/redis/rueidis"

// NewStoreForTest builds a Store around a mock rueidis client.
func NewStoreForTest(c rueidis.Client) *Store {
	return &Store{client: c}
}
