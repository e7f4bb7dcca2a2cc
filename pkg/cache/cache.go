package cache

import (
	"bufio"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/mirrorpush/mirrorpush/pkg/errors"
)

// Mocked out for unit testing.
var fs = afero.NewOsFs()

// Entry is the cached verification state for one local file. The fingerprint
// is only trusted while the file's modification time still matches ModTime.
type Entry struct {
	Fingerprint string
	ModTime     int64
}

// Cache maps absolute local file paths to their last computed fingerprints.
// It exists to avoid rehashing unchanged files across sessions: hashing is
// expensive relative to a stat, and a matching modification time is accepted
// as proof that the cached fingerprint is still valid.
type Cache struct {
	entries map[string]Entry
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{entries: map[string]Entry{}}
}

// Load reads the persisted cache at `path`. A missing file yields an empty
// cache, and malformed lines are skipped, so a corrupt or absent store never
// blocks a session.
func Load(path string) *Cache {
	c := New()

	f, err := fs.Open(path)
	if err != nil {
		return c
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		fields := strings.Split(line, "|")
		if len(fields) != 3 {
			log.WithField("line", line).Debug("Skipping malformed cache line")
			continue
		}

		modTime, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			log.WithField("line", line).Debug("Skipping malformed cache line")
			continue
		}

		c.entries[fields[0]] = Entry{Fingerprint: fields[1], ModTime: modTime}
	}
	return c
}

// Lookup returns the cached fingerprint for `path` if it was computed against
// the same modification time. Otherwise the entry is stale and the caller
// must recompute.
func (c *Cache) Lookup(path string, modTime int64) (string, bool) {
	entry, ok := c.entries[path]
	if !ok || entry.ModTime != modTime {
		return "", false
	}
	return entry.Fingerprint, true
}

// Update overwrites the entry for `path`. Last write wins.
func (c *Cache) Update(path, fingerprint string, modTime int64) {
	c.entries[path] = Entry{Fingerprint: fingerprint, ModTime: modTime}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	return len(c.entries)
}

// Save rewrites the full cache at `path`. It writes to a temporary file and
// renames it into place so that a crash mid-save can't leave a truncated
// store behind.
func (c *Cache) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0755); err != nil {
			return errors.WithContext(err, "create cache directory")
		}
	}

	tmpPath := path + ".tmp"
	f, err := fs.Create(tmpPath)
	if err != nil {
		return errors.WithContext(err, "create temporary cache file")
	}

	// Sort the paths so that the file contents are stable across sessions.
	var paths []string
	for p := range c.entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		entry := c.entries[p]
		if _, err := fmt.Fprintf(f, "%s|%s|%d\n",
			p, entry.Fingerprint, entry.ModTime); err != nil {
			f.Close()
			return errors.WithContext(err, "write cache entry")
		}
	}

	if err := f.Close(); err != nil {
		return errors.WithContext(err, "close temporary cache file")
	}

	if err := fs.Rename(tmpPath, path); err != nil {
		return errors.WithContext(err, "replace cache file")
	}
	return nil
}
