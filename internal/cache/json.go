package cache

import (
	"context"
	"encoding/json"
	"time"
)

// GetJSON decodes a cached JSON document into T. Undecodable entries count as misses.
func GetJSON[T any](ctx context.Context, store Store, key string) (T, bool, error) {
	var zero T
	if store == nil {
		return zero, false, nil
	}
	raw, ok, err := store.Get(ctx, key)
	if err != nil || !ok {
		return zero, false, err
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, false, nil
	}
	return out, true, nil
}

// SetJSON stores value as JSON under key.
func SetJSON(ctx context.Context, store Store, key string, value any, ttl time.Duration) error {
	if store == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return store.Set(ctx, key, raw, ttl)
}
