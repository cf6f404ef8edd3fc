// Package store resolves bearer tokens to users. Tokens expire after a
// configurable TTL in both the in-memory and the Redis backend.
package store
