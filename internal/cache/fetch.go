package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Fetch is the typed form of Manager.Get. Values restored from storage are
// held as raw JSON and decoded into T on the way out.
func Fetch[T any](
	ctx context.Context,
	m *Manager,
	key string,
	fetch func(ctx context.Context) (T, error),
	ttl time.Duration,
	opts ...GetOption,
) (T, error) {
	var zero T
	if fetch == nil {
		return zero, ErrNilFetch
	}

	v, err := m.Get(ctx, key, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	}, ttl, opts...)
	if err != nil {
		return zero, err
	}
	return As[T](key, v)
}

// As converts a cached value to T, decoding raw JSON when needed.
func As[T any](key string, v any) (T, error) {
	var zero T
	switch tv := v.(type) {
	case T:
		return tv, nil
	case json.RawMessage:
		var out T
		if err := json.Unmarshal(tv, &out); err != nil {
			return zero, fmt.Errorf("%w: decoding %s: %w", ErrTypeMismatch, key, err)
		}
		return out, nil
	case nil:
		return zero, nil
	default:
		return zero, fmt.Errorf("%w: %s holds %T", ErrTypeMismatch, key, v)
	}
}
