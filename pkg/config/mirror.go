package config

import (
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"

	"github.com/mirrorpush/mirrorpush/pkg/errors"
)

// Mirror is the top-level configuration for a replication session. It's
// parsed from `mirrorpush.yaml`.
type Mirror struct {
	Version string `json:"version,omitempty"`

	// Remote identifies the host that the sources are pushed to. Required.
	Remote Remote `json:"remote"`

	// Destination is the path on the remote host under which all sources are
	// replicated. Required.
	Destination string `json:"destination"`

	// Sources are the local directories to replicate, in order. Required.
	Sources []Source `json:"sources"`

	// Checksum selects content verification instead of the size/mtime
	// heuristic. Slower, more reliable.
	Checksum bool `json:"checksum,omitempty"`

	// WholeTree hands each source directory to the bulk transfer tool in one
	// invocation instead of classifying files individually.
	WholeTree bool `json:"wholeTree,omitempty"`

	// Compress enables wire compression in the bulk transfer tool.
	Compress bool `json:"compress,omitempty"`

	MaxAttempts      int `json:"maxAttempts,omitempty"`
	BaseDelaySeconds int `json:"baseDelaySeconds,omitempty"`

	// ParallelJobs bounds the worker pool used for per-file transfers.
	ParallelJobs int `json:"parallelJobs,omitempty"`

	CachePath      string `json:"cachePath,omitempty"`
	ErrorLogPath   string `json:"errorLogPath,omitempty"`
	SessionLogPath string `json:"sessionLogPath,omitempty"`
}

// Remote identifies the host that receives the replicated trees.
type Remote struct {
	Host string `json:"host"`
	User string `json:"user,omitempty"`

	// KeyPath is the private key used for authentication. Authentication is
	// always key-based; there is no password prompt.
	KeyPath string `json:"keyPath,omitempty"`

	Port                  int `json:"port,omitempty"`
	ConnectTimeoutSeconds int `json:"connectTimeoutSeconds,omitempty"`
	KeepaliveSeconds      int `json:"keepaliveSeconds,omitempty"`
}

// Source pairs a local directory with its path under the destination prefix.
type Source struct {
	From string `json:"from"`
	To   string `json:"to,omitempty"`
}

// SupportedMirrorConfigVersion is the config version understood by the
// current Mirrorpush binary.
const SupportedMirrorConfigVersion = "v1alpha1"

// InitialMirrorConfigVersion is the version assumed for config files that
// don't specify one.
const InitialMirrorConfigVersion = "v1alpha1"

const (
	defaultMaxAttempts      = 3
	defaultBaseDelaySeconds = 30
	defaultParallelJobs     = 1
	defaultPort             = 22
	defaultConnectTimeout   = 10
	defaultKeepalive        = 30
)

func (c Mirror) getVersion() string {
	return c.Version
}

// ParseMirror parses and validates the mirror configuration at `path`.
func ParseMirror(path string) (Mirror, error) {
	config := Mirror{Version: InitialMirrorConfigVersion}
	if err := parseConfig(path, &config, SupportedMirrorConfigVersion); err != nil {
		return Mirror{}, errors.WithContext(err, "parse")
	}

	if config.Remote.Host == "" {
		return Mirror{}, errors.MissingFieldError{Field: "remote.host"}
	}
	if config.Destination == "" {
		return Mirror{}, errors.MissingFieldError{Field: "destination"}
	}
	if len(config.Sources) == 0 {
		return Mirror{}, errors.MissingFieldError{Field: "sources"}
	}

	var cleanedSources []Source
	for _, source := range config.Sources {
		if source.From == "" {
			return Mirror{}, errors.MissingFieldError{Field: "sources[].from"}
		}

		// Expand ~'s so that configs can be shared between machines.
		from, err := homedir.Expand(source.From)
		if err != nil {
			return Mirror{}, errors.WithContext(err, "expand homedir")
		}

		source.From = filepath.Clean(from)
		if source.To == "" {
			source.To = filepath.Base(source.From)
		}
		source.To = filepath.Clean(source.To)
		cleanedSources = append(cleanedSources, source)
	}
	config.Sources = cleanedSources

	if config.Remote.KeyPath == "" {
		config.Remote.KeyPath = "~/.ssh/id_rsa"
	}

	for _, expand := range []*string{
		&config.Remote.KeyPath, &config.CachePath,
		&config.ErrorLogPath, &config.SessionLogPath,
	} {
		if *expand == "" {
			continue
		}
		expanded, err := homedir.Expand(*expand)
		if err != nil {
			return Mirror{}, errors.WithContext(err, "expand homedir")
		}
		*expand = filepath.Clean(expanded)
	}

	config.applyDefaults()
	return config, nil
}

func (c *Mirror) applyDefaults() {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.BaseDelaySeconds == 0 {
		c.BaseDelaySeconds = defaultBaseDelaySeconds
	}
	if c.ParallelJobs == 0 {
		c.ParallelJobs = defaultParallelJobs
	}
	if c.Remote.Port == 0 {
		c.Remote.Port = defaultPort
	}
	if c.Remote.ConnectTimeoutSeconds == 0 {
		c.Remote.ConnectTimeoutSeconds = defaultConnectTimeout
	}
	if c.Remote.KeepaliveSeconds == 0 {
		c.Remote.KeepaliveSeconds = defaultKeepalive
	}

	stateDir, err := homedir.Expand("~/.mirrorpush")
	if err != nil {
		// Fall back to a relative state directory. This only happens in
		// environments without a resolvable home directory.
		stateDir = ".mirrorpush"
	}
	if c.CachePath == "" {
		c.CachePath = filepath.Join(stateDir, "checksums")
	}
	if c.ErrorLogPath == "" {
		c.ErrorLogPath = filepath.Join(stateDir, "errors.log")
	}
	if c.SessionLogPath == "" {
		c.SessionLogPath = filepath.Join(stateDir, "session.log")
	}
}
