package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStores(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	var testCases = []struct {
		description string
		store       Store
	}{
		{description: "memory", store: NewMemoryStore()},
		{description: "redis", store: NewRedisStore(client, "test", time.Hour)},
	}

	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			ctx := context.Background()
			_, ok, err := testCase.store.Get(ctx, "s1")
			require.NoError(t, err)
			assert.False(t, ok)

			at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
			require.NoError(t, testCase.store.Touch(ctx, "s1", at))
			session, ok, err := testCase.store.Get(ctx, "s1")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "s1", session.ID)
			assert.True(t, at.Equal(session.LastPingAt))
			assert.Equal(t, StatusActive, session.Status)

			require.NoError(t, testCase.store.SetStatus(ctx, "s1", StatusClosed))
			require.NoError(t, testCase.store.Touch(ctx, "s1", at.Add(time.Second)))
			session, _, err = testCase.store.Get(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, StatusClosed, session.Status)
			assert.True(t, at.Add(time.Second).Equal(session.LastPingAt))
		})
	}
}
