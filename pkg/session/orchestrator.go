package session

import (
	"fmt"
	"sort"
	gosync "sync"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/mirrorpush/mirrorpush/pkg/cache"
	"github.com/mirrorpush/mirrorpush/pkg/errors"
	"github.com/mirrorpush/mirrorpush/pkg/retry"
	"github.com/mirrorpush/mirrorpush/pkg/sync"
)

// Classifier partitions one source folder into transfer buckets.
type Classifier interface {
	Classify(folder sync.SourceFolder) (sync.Plan, error)
}

// Executor moves bytes to the remote host. Both methods report only overall
// success or failure per invocation.
type Executor interface {
	// File transfers one file and reports whether its contents actually
	// changed on the remote side.
	File(localPath, remotePath string) (changed bool, err error)

	// Tree hands a whole directory to the bulk transfer tool.
	Tree(localDir, remotePrefix string) error
}

// Orchestrator sequences the configured sources through classification,
// transfer, and retry, isolating failures so that one unreachable file or
// source never stops the rest of the batch.
type Orchestrator struct {
	Folders    []sync.SourceFolder
	Classifier Classifier
	Executor   Executor

	// Cache is saved to CachePath at the end of the session, even when some
	// transfers failed, so future runs benefit from work already verified.
	Cache     *cache.Cache
	CachePath string

	Log *ErrorLog

	MaxAttempts int
	BaseDelay   time.Duration

	// ParallelJobs bounds the worker pool for per-file transfers. Values
	// below two mean sequential processing.
	ParallelJobs int

	// WholeTree skips per-file classification and delegates each source's
	// diff to the bulk transfer tool.
	WholeTree bool

	Clock clockwork.Clock
}

// Summary is the session's terminal report. A session with failures is
// "completed with errors", which is a normal terminal state, not an overall
// failure.
type Summary struct {
	Sources            int
	Transferred        int
	UpToDate           int
	ChecksumMismatches int
	Failed             int
	Counts             map[Kind]int
}

// Clean reports whether the session ended with zero failure records.
func (s Summary) Clean() bool {
	return len(s.Counts) == 0
}

func (s Summary) String() string {
	base := fmt.Sprintf("%d sources: %d transferred, %d already up to date",
		s.Sources, s.Transferred, s.UpToDate)
	if s.Clean() {
		return "Completed " + base + "."
	}

	var kinds []string
	for kind := range s.Counts {
		kinds = append(kinds, string(kind))
	}
	sort.Strings(kinds)

	counts := ""
	for i, kind := range kinds {
		if i > 0 {
			counts += ", "
		}
		counts += fmt.Sprintf("%s=%d", kind, s.Counts[Kind(kind)])
	}
	return fmt.Sprintf("Completed with errors %s (%s).", base, counts)
}

// Run executes the session: validate sources, classify and transfer each one,
// persist the checksum cache, and summarize. Only a configuration error (zero
// valid sources) aborts; every other failure is recorded and skipped past.
func (o *Orchestrator) Run() (Summary, error) {
	valid := o.validateSources()
	if len(valid) == 0 {
		return Summary{}, errors.ConfigurationError{
			Message: "none of the configured source directories exist",
		}
	}

	summary := Summary{Sources: len(valid)}
	for _, folder := range valid {
		if o.WholeTree {
			o.pushTree(folder)
			continue
		}
		o.pushFiles(folder, &summary)
	}

	o.persistCache()

	summary.Counts = o.Log.Counts()
	return summary, nil
}

// validateSources drops sources that don't exist locally. Each one is logged
// and recorded, and the session proceeds with the rest.
func (o *Orchestrator) validateSources() []sync.SourceFolder {
	var valid []sync.SourceFolder
	for _, folder := range o.Folders {
		exists, err := afero.DirExists(fs, folder.LocalDir)
		if err != nil || !exists {
			log.WithField("source", folder.LocalDir).
				Warn("Source directory doesn't exist. Skipping it.")
			o.Log.Append(KindSourceMissing, folder.LocalDir)
			continue
		}
		valid = append(valid, folder)
	}
	return valid
}

func (o *Orchestrator) pushTree(folder sync.SourceFolder) {
	driver := retry.Driver{
		MaxAttempts: o.MaxAttempts,
		BaseDelay:   o.BaseDelay,
		Clock:       o.Clock,
		OnFailure: func(attempt int, err error) {
			log.WithError(err).WithFields(log.Fields{
				"source":  folder.LocalDir,
				"attempt": attempt,
			}).Warn("Tree sync attempt failed")
			o.Log.Append(KindSyncFailed, folder.LocalDir)
		},
	}

	err := driver.Run(func() error {
		return o.Executor.Tree(folder.LocalDir, folder.RemotePrefix)
	})
	if err != nil {
		o.Log.Append(KindCritical, folder.LocalDir)
	}
}

func (o *Orchestrator) pushFiles(folder sync.SourceFolder, summary *Summary) {
	plan, err := o.Classifier.Classify(folder)
	if err != nil {
		log.WithError(err).WithField("source", folder.LocalDir).
			Warn("Failed to classify source. Skipping it.")
		o.Log.Append(KindSyncFailed, folder.LocalDir)
		return
	}

	summary.UpToDate += len(plan.UpToDate)
	if len(plan.ToTransfer) == 0 {
		return
	}

	workers := o.ParallelJobs
	if workers < 1 {
		workers = 1
	}
	if len(plan.ToTransfer) < workers {
		workers = len(plan.ToTransfer)
	}

	if workers == 1 {
		for _, task := range plan.ToTransfer {
			o.tally(summary, o.pushFile(task))
		}
		return
	}

	// Run the transfers on a bounded worker pool. The error log serializes
	// its own appends; the summary is only touched here, from the results.
	tasks := make(chan sync.FileTask, workers*2)
	results := make(chan fileResult, workers)
	var waitGroup gosync.WaitGroup
	for i := 0; i < workers; i++ {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			for task := range tasks {
				results <- o.pushFile(task)
			}
		}()
	}

	go func() {
		for _, task := range plan.ToTransfer {
			tasks <- task
		}
		close(tasks)

		waitGroup.Wait()
		close(results)
	}()

	for res := range results {
		o.tally(summary, res)
	}
}

type fileResult struct {
	class sync.Classification
	ok    bool
}

// pushFile transfers one file under the retry budget. Every failed attempt is
// recorded; exhausting the budget records exactly one Critical entry.
func (o *Orchestrator) pushFile(task sync.FileTask) fileResult {
	var changed bool
	driver := retry.Driver{
		MaxAttempts: o.MaxAttempts,
		BaseDelay:   o.BaseDelay,
		Clock:       o.Clock,
		OnFailure: func(attempt int, err error) {
			log.WithError(err).WithFields(log.Fields{
				"file":    task.LocalPath,
				"attempt": attempt,
			}).Warn("File transfer attempt failed")
			o.Log.Append(KindTransferFailed, task.LocalPath)
		},
	}

	err := driver.Run(func() error {
		var transferErr error
		changed, transferErr = o.Executor.File(task.LocalPath, task.RemotePath)
		return transferErr
	})
	if err != nil {
		o.Log.Append(KindCritical, task.LocalPath)
		return fileResult{class: task.Class}
	}

	class := task.Class
	if task.Verify {
		// The transfer tool's content verification settles what size
		// equality couldn't: either the file really was identical, or its
		// contents differed.
		if changed {
			class = sync.ClassChecksumMismatch
		} else {
			class = sync.ClassIdentical
		}
	}
	return fileResult{class: class, ok: true}
}

func (o *Orchestrator) tally(summary *Summary, res fileResult) {
	if !res.ok {
		summary.Failed++
		return
	}

	switch res.class {
	case sync.ClassIdentical:
		summary.UpToDate++
	case sync.ClassChecksumMismatch:
		summary.ChecksumMismatches++
		summary.Transferred++
	default:
		summary.Transferred++
	}
}

// persistCache saves the checksum cache unconditionally, even when transfers
// failed, so the fingerprints already computed aren't lost.
func (o *Orchestrator) persistCache() {
	if o.Cache == nil || o.CachePath == "" {
		return
	}
	if err := o.Cache.Save(o.CachePath); err != nil {
		log.WithError(err).WithField("path", o.CachePath).
			Warn("Failed to save checksum cache")
	}
}
