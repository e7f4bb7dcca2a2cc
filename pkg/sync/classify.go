package sync

import (
	"os"
	"path"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/mirrorpush/mirrorpush/pkg/cache"
	"github.com/mirrorpush/mirrorpush/pkg/errors"
	"github.com/mirrorpush/mirrorpush/pkg/remote"
)

// Mocked out for unit testing.
var fs = afero.NewOsFs()

// A SourceFolder pairs a local directory with the remote prefix its contents
// are replicated under. It's immutable for the duration of a session.
type SourceFolder struct {
	LocalDir     string
	RemotePrefix string
}

// Classification is the per-file transfer decision.
type Classification int

const (
	// ClassNew means the file has no remote counterpart.
	ClassNew Classification = iota

	// ClassIdentical means the remote counterpart matches and no transfer is
	// needed.
	ClassIdentical

	// ClassSizeMismatch means the remote counterpart has a different size.
	ClassSizeMismatch

	// ClassChecksumMismatch means the transfer tool's content verification
	// found the remote counterpart to differ despite matching size.
	ClassChecksumMismatch
)

func (c Classification) String() string {
	switch c {
	case ClassNew:
		return "new"
	case ClassIdentical:
		return "identical"
	case ClassSizeMismatch:
		return "size-mismatch"
	case ClassChecksumMismatch:
		return "checksum-mismatch"
	default:
		return "unknown"
	}
}

// A FileTask is one file's unit of work: where it lives locally, where it
// goes remotely, and why it was selected.
type FileTask struct {
	LocalPath  string
	RemotePath string
	Size       int64
	ModTime    int64
	Class      Classification

	// Verify marks an equal-size file selected only because checksum mode is
	// on. The transfer tool's content verification decides whether it was
	// actually a ClassChecksumMismatch or a ClassIdentical.
	Verify bool
}

// A Plan is the outcome of classifying one source folder.
type Plan struct {
	// ToTransfer is every file that needs to be pushed, in walk order.
	ToTransfer []FileTask

	// UpToDate is every file whose remote counterpart already matches.
	UpToDate []FileTask
}

// Classifier decides, per file, whether a transfer is needed.
type Classifier struct {
	Probe remote.Probe

	// Cache avoids rehashing unchanged files across sessions. Only consulted
	// in checksum mode.
	Cache *cache.Cache

	// Checksum selects content verification instead of the size heuristic.
	Checksum bool
}

// Classify walks `folder` and partitions its files into transfer buckets.
// An empty source tree produces two empty buckets and is not an error.
func (c Classifier) Classify(folder SourceFolder) (Plan, error) {
	var plan Plan
	err := afero.Walk(fs, folder.LocalDir, func(localPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}

		relativePath, err := filepath.Rel(folder.LocalDir, localPath)
		if err != nil {
			return errors.WithContext(err, "relative path")
		}

		task := FileTask{
			LocalPath:  localPath,
			RemotePath: path.Join(folder.RemotePrefix, filepath.ToSlash(relativePath)),
			Size:       fi.Size(),
			ModTime:    fi.ModTime().Unix(),
		}

		c.classify(&task)
		if task.Class == ClassIdentical && !task.Verify {
			plan.UpToDate = append(plan.UpToDate, task)
		} else {
			plan.ToTransfer = append(plan.ToTransfer, task)
		}
		return nil
	})
	if err != nil {
		return Plan{}, errors.WithContext(err, "walk source")
	}
	return plan, nil
}

func (c Classifier) classify(task *FileTask) {
	if !c.Probe.Exists(task.RemotePath) {
		task.Class = ClassNew
		return
	}

	stat, ok := c.Probe.Stat(task.RemotePath)
	if !ok {
		// A present file we can't stat is treated as zero-size, so it falls
		// through to a size mismatch and gets retransferred.
		stat = remote.FileStat{}
	}

	if stat.Size != task.Size {
		task.Class = ClassSizeMismatch
		return
	}

	task.Class = ClassIdentical
	if !c.Checksum {
		return
	}

	// Size equality is only a proxy in checksum mode: the file still goes to
	// the transfer tool for content verification. Warm the cache now so the
	// next session doesn't rehash an unchanged file.
	task.Verify = true
	if _, ok := c.Cache.Lookup(task.LocalPath, task.ModTime); ok {
		return
	}

	fingerprint, err := HashFile(task.LocalPath)
	if err != nil {
		log.WithError(err).WithField("path", task.LocalPath).
			Warn("Failed to fingerprint file. Continuing without caching it.")
		return
	}
	c.Cache.Update(task.LocalPath, fingerprint, task.ModTime)
}
