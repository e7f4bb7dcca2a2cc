package cache

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	fs = afero.NewMemMapFs()

	c := New()
	c.Update("/data/site/index.html", "fp-index", 100)
	c.Update("/data/site/style.css", "fp-style", 200)
	c.Update("/data/photos/cat.jpg", "fp-cat", 300)
	require.NoError(t, c.Save("/state/checksums"))

	loaded := Load("/state/checksums")
	assert.Equal(t, c.entries, loaded.entries)

	// The temporary file shouldn't be left behind.
	exists, err := afero.Exists(fs, "/state/checksums.tmp")
	assert.NoError(t, err)
	assert.False(t, exists)
}

func TestLoadMissingFile(t *testing.T) {
	fs = afero.NewMemMapFs()
	c := Load("/dne/checksums")
	assert.Equal(t, 0, c.Len())
}

func TestLoadSkipsMalformedLines(t *testing.T) {
	fs = afero.NewMemMapFs()

	contents := "/good/file|fp-good|100\n" +
		"not a cache line\n" +
		"/bad/mtime|fp-bad|not-a-number\n" +
		"\n" +
		"/another/good|fp-another|200\n"
	require.NoError(t, afero.WriteFile(fs, "/state/checksums", []byte(contents), 0644))

	c := Load("/state/checksums")
	assert.Equal(t, 2, c.Len())

	fingerprint, ok := c.Lookup("/good/file", 100)
	assert.True(t, ok)
	assert.Equal(t, "fp-good", fingerprint)

	fingerprint, ok = c.Lookup("/another/good", 200)
	assert.True(t, ok)
	assert.Equal(t, "fp-another", fingerprint)
}

func TestLookupStaleModTime(t *testing.T) {
	c := New()
	c.Update("/data/file", "fp", 100)

	_, ok := c.Lookup("/data/file", 101)
	assert.False(t, ok, "an entry computed against a different mtime is stale")

	fingerprint, ok := c.Lookup("/data/file", 100)
	assert.True(t, ok)
	assert.Equal(t, "fp", fingerprint)
}

func TestUpdateOverwrites(t *testing.T) {
	c := New()
	c.Update("/data/file", "old", 100)
	c.Update("/data/file", "new", 200)

	_, ok := c.Lookup("/data/file", 100)
	assert.False(t, ok)

	fingerprint, ok := c.Lookup("/data/file", 200)
	assert.True(t, ok)
	assert.Equal(t, "new", fingerprint)
	assert.Equal(t, 1, c.Len())
}

func TestSaveReplacesPreviousContents(t *testing.T) {
	fs = afero.NewMemMapFs()

	first := New()
	first.Update("/only/in/first", "fp-first", 100)
	require.NoError(t, first.Save("/state/checksums"))

	second := New()
	second.Update("/only/in/second", "fp-second", 200)
	require.NoError(t, second.Save("/state/checksums"))

	loaded := Load("/state/checksums")
	assert.Equal(t, 1, loaded.Len())
	_, ok := loaded.Lookup("/only/in/first", 100)
	assert.False(t, ok)
}
