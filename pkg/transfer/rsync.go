// Package transfer invokes the bulk transfer tool. The tool's exit status is
// the sole success signal; there are no partial-success semantics below one
// invocation.
package transfer

import (
	"fmt"
	"os/exec"
	"path"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/mirrorpush/mirrorpush/pkg/errors"
	"github.com/mirrorpush/mirrorpush/pkg/remote"
)

// Mocked out for unit testing.
var runCommand = func(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).Output()
}

// Target identifies the remote end of a transfer.
type Target struct {
	Host           string
	User           string
	KeyPath        string
	Port           int
	ConnectTimeout time.Duration
}

// Rsync performs transfers by shelling out to rsync over SSH.
type Rsync struct {
	Target Target

	// Probe creates remote parent directories before per-file transfers.
	Probe remote.Probe

	// Compress enables wire compression.
	Compress bool

	// Checksum makes rsync verify file contents instead of trusting the
	// size/mtime heuristic.
	Checksum bool

	// LogPath, if set, is where rsync writes its own progress log.
	LogPath string
}

// File transfers exactly one file. It reports whether rsync's itemized output
// shows the file's contents actually changed on the remote side, which is how
// checksum mode distinguishes a real mismatch from a false size-equality
// alarm.
func (r Rsync) File(localPath, remotePath string) (bool, error) {
	// A directory that truly can't be created makes the transfer itself
	// fail, so a mkdir failure is logged rather than raised.
	if err := r.Probe.MkdirAll(path.Dir(remotePath)); err != nil {
		log.WithError(err).WithField("dir", path.Dir(remotePath)).
			Warn("Failed to create remote directory. The transfer may fail.")
	}

	args := append(r.baseArgs(), localPath, r.remoteSpec(remotePath))
	out, err := runCommand("rsync", args...)
	if err != nil {
		return false, errors.WithContext(err, "rsync")
	}
	return itemizedChange(string(out)), nil
}

// Tree hands an entire source directory to rsync in one invocation, letting
// it perform its own internal diff.
func (r Rsync) Tree(localDir, remotePrefix string) error {
	// The trailing slash makes rsync copy the directory's contents rather
	// than the directory itself.
	args := append(r.baseArgs(),
		strings.TrimSuffix(localDir, "/")+"/", r.remoteSpec(remotePrefix))
	if _, err := runCommand("rsync", args...); err != nil {
		return errors.WithContext(err, "rsync")
	}
	return nil
}

func (r Rsync) baseArgs() []string {
	args := []string{"--archive", "--partial", "--itemize-changes"}
	if r.Compress {
		args = append(args, "--compress")
	}
	if r.Checksum {
		args = append(args, "--checksum")
	}
	if r.LogPath != "" {
		args = append(args, "--log-file="+r.LogPath)
	}
	args = append(args, "-e", r.sshCommand())
	return args
}

func (r Rsync) sshCommand() string {
	cmd := fmt.Sprintf("ssh -p %d -o BatchMode=yes -o ConnectTimeout=%d",
		r.Target.Port, int(r.Target.ConnectTimeout.Seconds()))
	if r.Target.KeyPath != "" {
		cmd += " -i " + r.Target.KeyPath
	}
	return cmd
}

func (r Rsync) remoteSpec(remotePath string) string {
	host := r.Target.Host
	if r.Target.User != "" {
		host = r.Target.User + "@" + host
	}
	return host + ":" + remotePath
}

// itemizedChange reports whether rsync's --itemize-changes output contains a
// file transfer. Lines like ">f.st......" mean the file was sent; an empty
// itemization means the remote side already matched.
func itemizedChange(out string) bool {
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 2 {
			continue
		}
		if (line[0] == '>' || line[0] == '<' || line[0] == 'c') && line[1] == 'f' {
			return true
		}
	}
	return false
}
