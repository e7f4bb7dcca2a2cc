package remote

// FileStat is the remote file metadata used for classification.
type FileStat struct {
	// Size is the file size in bytes.
	Size int64

	// ModTime is the modification time in seconds since the epoch.
	ModTime int64
}

// Probe is the narrow interface the classifier and transfer executor use to
// inspect the remote side. Keeping it narrow means the remote execution
// mechanism can be swapped without touching classification or retry logic.
//
// Probe failures are never session-fatal: Exists and Stat report "not
// present" when the query itself fails, and a MkdirAll failure is logged by
// callers rather than raised, since a transfer into a directory that truly
// couldn't be created fails on its own.
type Probe interface {
	// Exists reports whether `path` exists on the remote host.
	Exists(path string) bool

	// Stat returns the size and modification time of the remote file, and
	// whether the query succeeded.
	Stat(path string) (FileStat, bool)

	// MkdirAll creates the remote directory and any missing parents. It's
	// idempotent.
	MkdirAll(dir string) error

	// Close tears down the remote connection.
	Close() error
}
