package remote

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/crypto/ssh"

	"github.com/mirrorpush/mirrorpush/pkg/errors"
)

// Mocked out for unit testing.
var fs = afero.NewOsFs()

// SSHOptions configures the connection to the remote host. Authentication is
// key-based; host identity is assumed to be established out-of-band.
type SSHOptions struct {
	Host           string
	User           string
	KeyPath        string
	Port           int
	ConnectTimeout time.Duration

	// Keepalive is the interval between liveness probes on the connection.
	// Zero disables them.
	Keepalive time.Duration

	Clock clockwork.Clock
}

// SSHProbe implements Probe by running commands over an SSH session.
type SSHProbe struct {
	client *ssh.Client
	stop   chan struct{}
}

// DialSSH connects to the remote host and starts the keepalive loop.
func DialSSH(opts SSHOptions) (*SSHProbe, error) {
	key, err := afero.ReadFile(fs, opts.KeyPath)
	if err != nil {
		return nil, errors.WithContext(err, "read private key")
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, errors.WithContext(err, "parse private key")
	}

	config := &ssh.ClientConfig{
		User:    opts.User,
		Auth:    []ssh.AuthMethod{ssh.PublicKeys(signer)},
		Timeout: opts.ConnectTimeout,

		// Host keys are verified out-of-band (e.g. by provisioning), so the
		// probe doesn't maintain a known_hosts file.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}

	addr := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, errors.WithContext(err, "dial")
	}

	probe := &SSHProbe{client: client, stop: make(chan struct{})}
	if opts.Keepalive > 0 {
		clock := opts.Clock
		if clock == nil {
			clock = clockwork.NewRealClock()
		}
		go probe.keepalive(clock, opts.Keepalive)
	}
	return probe, nil
}

// keepalive periodically pokes the connection so that half-open sessions are
// detected by the transport rather than hanging a transfer indefinitely.
func (p *SSHProbe) keepalive(clock clockwork.Clock, interval time.Duration) {
	for {
		select {
		case <-p.stop:
			return
		case <-clock.After(interval):
			if _, _, err := p.client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				log.WithError(err).Debug("SSH keepalive failed")
			}
		}
	}
}

// Exists reports whether `path` exists on the remote host. Query failures are
// treated as "not present" so that a flaky probe degrades to retransferring
// rather than aborting the session.
func (p *SSHProbe) Exists(path string) bool {
	_, err := p.run(fmt.Sprintf("test -e %s", shellQuote(path)))
	return err == nil
}

// Stat returns the size and modification time of the remote file. Query
// failures are treated as "no stat available".
func (p *SSHProbe) Stat(path string) (FileStat, bool) {
	out, err := p.run(fmt.Sprintf("stat -c '%%s %%Y' %s", shellQuote(path)))
	if err != nil {
		return FileStat{}, false
	}

	stat, err := parseStat(out)
	if err != nil {
		log.WithError(err).WithField("path", path).Debug("Failed to parse remote stat")
		return FileStat{}, false
	}
	return stat, true
}

// MkdirAll creates the remote directory and any missing parents.
func (p *SSHProbe) MkdirAll(dir string) error {
	if _, err := p.run(fmt.Sprintf("mkdir -p %s", shellQuote(dir))); err != nil {
		return errors.WithContext(err, "mkdir")
	}
	return nil
}

// Close stops the keepalive loop and closes the connection.
func (p *SSHProbe) Close() error {
	close(p.stop)
	return p.client.Close()
}

func (p *SSHProbe) run(command string) (string, error) {
	session, err := p.client.NewSession()
	if err != nil {
		return "", errors.WithContext(err, "new session")
	}
	defer session.Close()

	out, err := session.Output(command)
	if err != nil {
		return "", errors.WithContext(err, "run command")
	}
	return string(out), nil
}

func parseStat(out string) (FileStat, error) {
	fields := strings.Fields(out)
	if len(fields) != 2 {
		return FileStat{}, errors.New(fmt.Sprintf("unexpected stat output: %q", out))
	}

	size, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return FileStat{}, errors.WithContext(err, "parse size")
	}

	modTime, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return FileStat{}, errors.WithContext(err, "parse mtime")
	}

	return FileStat{Size: size, ModTime: modTime}, nil
}

// shellQuote wraps `s` in single quotes so that it's passed to the remote
// shell as a single literal argument.
func shellQuote(s string) string {
	return "'" + strings.Replace(s, "'", `'\''`, -1) + "'"
}
