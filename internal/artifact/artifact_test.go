package artifact

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskStore_RoundTripAndList(t *testing.T) {
	ctx := context.Background()
	s := NewDiskStore(t.TempDir())

	require.NoError(t, s.Put(ctx, "run-1", "transcript.md", []byte("# hi")))
	require.NoError(t, s.Put(ctx, "run-1", "nested/result.json", []byte("{}")))

	got, err := s.Get(ctx, "run-1", "transcript.md")
	require.NoError(t, err)
	assert.Equal(t, "# hi", string(got))

	list, err := s.List(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"nested/result.json", "transcript.md"}, list)

	_, err = s.Get(ctx, "run-1", "missing.md")
	assert.ErrorIs(t, err, ErrNotFound)

	empty, err := s.List(ctx, "run-2")
	require.NoError(t, err)
	assert.Empty(t, empty)

	u, err := s.GetURL(ctx, "run-1", "transcript.md")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "file://"), u)
}

func TestStores_RejectTraversal(t *testing.T) {
	ctx := context.Background()
	for _, s := range []Store{NewDiskStore(t.TempDir()), NewMemoryStore()} {
		assert.Error(t, s.Put(ctx, "run", "../escape", nil))
		assert.Error(t, s.Put(ctx, "../run", "a.md", nil))
		assert.Error(t, s.Put(ctx, "", "a.md", nil))
		assert.Error(t, s.Put(ctx, "run", "  ", nil))
	}
}

type countingStore struct {
	*MemoryStore
	gets  int
	lists int
}

func (c *countingStore) Get(ctx context.Context, runID, path string) ([]byte, error) {
	c.gets++
	return c.MemoryStore.Get(ctx, runID, path)
}

func (c *countingStore) List(ctx context.Context, runID string) ([]string, error) {
	c.lists++
	return c.MemoryStore.List(ctx, runID)
}

func TestCachedStore_HitsExpiryAndInvalidation(t *testing.T) {
	ctx := context.Background()
	origin := &countingStore{MemoryStore: NewMemoryStore()}
	now := time.Unix(1000, 0)
	s := newCachedStore(origin, CacheConfig{BlobTTL: time.Minute, ListTTL: time.Minute}, func() time.Time { return now })

	require.NoError(t, origin.MemoryStore.Put(ctx, "r", "a.md", []byte("A")))
	for i := 0; i < 3; i++ {
		got, err := s.Get(ctx, "r", "a.md")
		require.NoError(t, err)
		assert.Equal(t, "A", string(got))
	}
	assert.Equal(t, 1, origin.gets)

	now = now.Add(2 * time.Minute)
	_, err := s.Get(ctx, "r", "a.md")
	require.NoError(t, err)
	assert.Equal(t, 2, origin.gets)

	list, err := s.List(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md"}, list)
	require.NoError(t, s.Put(ctx, "r", "b.md", []byte("B")))
	list, err = s.List(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md", "b.md"}, list)
	assert.Equal(t, 2, origin.lists)

	m := s.Metrics()
	assert.EqualValues(t, 2, m.BlobHits)
	assert.EqualValues(t, 1, m.OriginWrites)
}

func TestCachedStore_PropagatesNotFound(t *testing.T) {
	s := NewCachedStore(NewMemoryStore(), CacheConfig{})
	_, err := s.Get(context.Background(), "r", "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.EqualValues(t, 1, s.Metrics().OriginReadErr)
	assert.NoError(t, s.Close())
}

func TestOpen_SelectsBackend(t *testing.T) {
	_, err := Open(Config{}, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)

	dir := t.TempDir()
	s, err := Open(Config{Dir: dir}, nil)
	require.NoError(t, err)
	_, isDisk := s.origin.(*DiskStore)
	assert.True(t, isDisk)

	s, err = Open(Config{Dir: dir, DatabaseURL: "postgres://u:p@localhost:1/db"}, nil)
	require.NoError(t, err)
	_, isPG := s.origin.(*PostgresStore)
	assert.True(t, isPG)
	require.NoError(t, s.Close())

	s, err = Open(Config{Dir: dir, S3: S3Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b", Bucket: "corawiki"}}, nil)
	require.NoError(t, err)
	_, isS3 := s.origin.(*S3Store)
	assert.True(t, isS3)
}
