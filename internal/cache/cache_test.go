package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pageURL = "https://sonarcloud.io/api/project_analyses/search?p=1&project=apache-ratis&ps=500"

func TestPageCache_RoundTrip(t *testing.T) {
	c, err := New(t.TempDir(), time.Hour, true)
	require.NoError(t, err)

	_, ok := c.Get(pageURL)
	assert.False(t, ok)

	body := []byte(`{"paging":{"pageIndex":1,"pageSize":500,"total":3}}`)
	require.NoError(t, c.Put(pageURL, body))

	got, ok := c.Get(pageURL)
	require.True(t, ok)
	assert.JSONEq(t, string(body), string(got))

	_, ok = c.Get(pageURL + "&other=1")
	assert.False(t, ok)
}

func TestPageCache_Expired(t *testing.T) {
	c, err := New(t.TempDir(), time.Hour, true)
	require.NoError(t, err)

	base := time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }
	require.NoError(t, c.Put(pageURL, []byte(`{}`)))

	c.now = func() time.Time { return base.Add(2 * time.Hour) }
	_, ok := c.Get(pageURL)
	assert.False(t, ok)

	_, err = os.Stat(c.keyPath(pageURL))
	assert.True(t, os.IsNotExist(err), "expired entry should be removed")
}

func TestPageCache_CorruptEntry(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, time.Hour, true)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(c.keyPath(pageURL), []byte("not json"), 0600))
	_, ok := c.Get(pageURL)
	assert.False(t, ok)
}

func TestPageCache_RejectsInvalidBody(t *testing.T) {
	c, err := New(t.TempDir(), time.Hour, true)
	require.NoError(t, err)
	assert.Error(t, c.Put(pageURL, []byte("<html>")))
}

func TestPageCache_Disabled(t *testing.T) {
	c := Disabled()
	require.NoError(t, c.Put(pageURL, []byte(`{}`)))
	_, ok := c.Get(pageURL)
	assert.False(t, ok)

	stats, err := c.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Entries)
}

func TestPageCache_StatsAndClear(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	c, err := New(dir, time.Hour, true)
	require.NoError(t, err)

	require.NoError(t, c.Put(pageURL, []byte(`{"a":1}`)))
	require.NoError(t, c.Put(pageURL+"&p=2", []byte(`{"a":2}`)))

	stats, err := c.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Entries)
	assert.Positive(t, stats.TotalSize)

	require.NoError(t, c.Clear())
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestDigest(t *testing.T) {
	assert.Len(t, Digest([]byte("x")), 64)
	assert.Equal(t, Digest([]byte("x")), Digest([]byte("x")))
	assert.NotEqual(t, Digest([]byte("x")), Digest([]byte("y")))
}
