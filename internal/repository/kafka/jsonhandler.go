package kafka

import (
	"context"
	"encoding/json"
	"fmt"
)

// JSONHandler decodes the message value into M before calling handle.
func JSONHandler[M any](handle func(ctx context.Context, key []byte, m M) error) Handler {
	return func(ctx context.Context, key, value []byte) error {
		var m M
		if err := json.Unmarshal(value, &m); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return handle(ctx, key, m)
	}
}
