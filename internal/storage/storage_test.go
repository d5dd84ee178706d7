package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "livewatch/pkg/logx"
)

func openDrivers(t *testing.T) map[string]func(dir string) Store {
	t.Helper()
	return map[string]func(dir string) Store{
		"memory": func(string) Store { return NewMemory() },
		"file": func(dir string) Store {
			s, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "subs")}, logx.Nop())
			require.NoError(t, err)
			return s
		},
		"sqlite": func(dir string) Store {
			s, err := Open(Config{Driver: "sqlite", Path: filepath.Join(dir, "subs.db")}, logx.Nop())
			require.NoError(t, err)
			return s
		},
	}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()
	for name, open := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t.TempDir())
			defer s.Close()

			added, err := s.AddSubscriber(ctx, CategoryLive, 1)
			require.NoError(t, err)
			assert.True(t, added)
			added, err = s.AddSubscriber(ctx, CategoryLive, 1)
			require.NoError(t, err)
			assert.False(t, added, "second add is a no-op")

			_, err = s.AddSubscriber(ctx, CategoryLive, 2)
			require.NoError(t, err)
			_, err = s.AddSubscriber(ctx, CategoryNotable, 2)
			require.NoError(t, err)

			ids, err := s.ListSubscribers(ctx, CategoryLive)
			require.NoError(t, err)
			assert.Equal(t, []int64{1, 2}, ids)

			subs, err := s.Subscriptions(ctx, 2)
			require.NoError(t, err)
			assert.Equal(t, []Category{CategoryLive, CategoryNotable}, subs)

			removed, err := s.RemoveSubscription(ctx, CategoryLive, 1)
			require.NoError(t, err)
			assert.True(t, removed)
			removed, err = s.RemoveSubscription(ctx, CategoryLive, 1)
			require.NoError(t, err)
			assert.False(t, removed)

			require.NoError(t, s.RemoveSubscriber(ctx, 2))
			counts, err := s.Counts(ctx)
			require.NoError(t, err)
			assert.Equal(t, map[Category]int{CategoryLive: 0, CategoryNotable: 0, CategoryThumbnail: 0}, counts)

			_, err = s.AddSubscriber(ctx, Category("bogus"), 3)
			assert.ErrorIs(t, err, ErrUnknownCategory)
		})
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "subs")
	s, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)

	for id := int64(1); id <= 3; id++ {
		_, err := s.AddSubscriber(ctx, CategoryThumbnail, id)
		require.NoError(t, err)
	}
	require.NoError(t, s.RemoveSubscriber(ctx, 2))
	// Reopen before Close so state comes from journal replay, not a compacted snapshot.
	reopened, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer reopened.Close()
	ids, err := reopened.ListSubscribers(ctx, CategoryThumbnail)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, ids)
	require.NoError(t, s.Close())
}

func TestOpenDisabled(t *testing.T) {
	s, err := Open(Config{Driver: "none"}, logx.Nop())
	assert.Nil(t, s)
	assert.True(t, errors.Is(err, ErrDisabled))

	_, err = Open(Config{Driver: "etcd"}, logx.Nop())
	assert.Error(t, err)
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory(" LIVE ")
	require.NoError(t, err)
	assert.Equal(t, CategoryLive, c)

	_, err = ParseCategory("weather")
	assert.ErrorIs(t, err, ErrUnknownCategory)
}
