package push

import (
	"path"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mirrorpush/mirrorpush/cmd/util"
	"github.com/mirrorpush/mirrorpush/pkg/cache"
	"github.com/mirrorpush/mirrorpush/pkg/config"
	"github.com/mirrorpush/mirrorpush/pkg/errors"
	"github.com/mirrorpush/mirrorpush/pkg/remote"
	"github.com/mirrorpush/mirrorpush/pkg/session"
	"github.com/mirrorpush/mirrorpush/pkg/sync"
	"github.com/mirrorpush/mirrorpush/pkg/transfer"
)

// New creates a new `push` command.
func New() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Replicate the configured sources to the remote host",
		Long: `Push the configured source directories to the remote host, transferring
only files that are new or changed. Transfers are retried with backoff, and
failures are recorded rather than aborting the session: a session always
processes every reachable file.`,
		Run: func(_ *cobra.Command, _ []string) {
			cfg, err := config.ParseMirror(configPath)
			if err != nil {
				util.HandleFatalError(err)
			}

			if err := run(cfg); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "mirrorpush.yaml",
		"Path to the replication configuration file.")
	return cmd
}

func run(cfg config.Mirror) error {
	checksums := cache.Load(cfg.CachePath)

	probe, err := remote.DialSSH(remote.SSHOptions{
		Host:           cfg.Remote.Host,
		User:           cfg.Remote.User,
		KeyPath:        cfg.Remote.KeyPath,
		Port:           cfg.Remote.Port,
		ConnectTimeout: time.Duration(cfg.Remote.ConnectTimeoutSeconds) * time.Second,
		Keepalive:      time.Duration(cfg.Remote.KeepaliveSeconds) * time.Second,
	})
	if err != nil {
		return errors.WithContext(err, "connect to remote host")
	}
	defer probe.Close()

	var folders []sync.SourceFolder
	for _, source := range cfg.Sources {
		folders = append(folders, sync.SourceFolder{
			LocalDir:     source.From,
			RemotePrefix: path.Join(cfg.Destination, source.To),
		})
	}

	errorLog := session.NewErrorLog(nil)
	orchestrator := &session.Orchestrator{
		Folders: folders,
		Classifier: sync.Classifier{
			Probe:    probe,
			Cache:    checksums,
			Checksum: cfg.Checksum,
		},
		Executor: transfer.Rsync{
			Target: transfer.Target{
				Host:           cfg.Remote.Host,
				User:           cfg.Remote.User,
				KeyPath:        cfg.Remote.KeyPath,
				Port:           cfg.Remote.Port,
				ConnectTimeout: time.Duration(cfg.Remote.ConnectTimeoutSeconds) * time.Second,
			},
			Probe:    probe,
			Compress: cfg.Compress,
			Checksum: cfg.Checksum,
			LogPath:  cfg.SessionLogPath,
		},
		Cache:        checksums,
		CachePath:    cfg.CachePath,
		Log:          errorLog,
		MaxAttempts:  cfg.MaxAttempts,
		BaseDelay:    time.Duration(cfg.BaseDelaySeconds) * time.Second,
		ParallelJobs: cfg.ParallelJobs,
		WholeTree:    cfg.WholeTree,
	}

	summary, err := orchestrator.Run()
	if err != nil {
		return err
	}

	if !errorLog.Empty() {
		if err := errorLog.WriteFile(cfg.ErrorLogPath); err != nil {
			log.WithError(err).WithField("path", cfg.ErrorLogPath).
				Warn("Failed to write the error log")
		}
	}

	if summary.Clean() {
		log.Info(summary.String())
	} else {
		log.Warnf("%s See %s for details.", summary, cfg.ErrorLogPath)
	}
	return nil
}
