package config

import (
	"fmt"
	"testing"

	"github.com/ghodss/yaml"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"

	"github.com/mirrorpush/mirrorpush/pkg/errors"
)

func TestParseMirror(t *testing.T) {
	path := "mirrorpush.yaml"

	valid := Mirror{
		Remote: Remote{
			Host:    "backup.example.com",
			User:    "mirror",
			KeyPath: "/home/op/.ssh/id_ed25519",
		},
		Destination: "/srv/mirror",
		Sources: []Source{
			{From: "/data/site", To: "site"},
			{From: "/data/photos"},
		},
		CachePath:      "/state/checksums",
		ErrorLogPath:   "/state/errors.log",
		SessionLogPath: "/state/session.log",
	}

	expValid := valid
	expValid.Version = SupportedMirrorConfigVersion
	expValid.Sources = []Source{
		{From: "/data/site", To: "site"},
		{From: "/data/photos", To: "photos"},
	}
	expValid.MaxAttempts = defaultMaxAttempts
	expValid.BaseDelaySeconds = defaultBaseDelaySeconds
	expValid.ParallelJobs = defaultParallelJobs
	expValid.Remote.Port = defaultPort
	expValid.Remote.ConnectTimeoutSeconds = defaultConnectTimeout
	expValid.Remote.KeepaliveSeconds = defaultKeepalive

	missingHost := valid
	missingHost.Remote = Remote{}

	missingDestination := valid
	missingDestination.Destination = ""

	missingSources := valid
	missingSources.Sources = nil

	wrongVersion := valid
	wrongVersion.Version = "v2"

	tests := []struct {
		name      string
		input     []byte
		expConfig Mirror
		expError  error
	}{
		{
			name:      "Valid",
			input:     mustMarshal(valid),
			expConfig: expValid,
		},
		{
			name:     "MissingHost",
			input:    mustMarshal(missingHost),
			expError: errors.MissingFieldError{Field: "remote.host"},
		},
		{
			name:     "MissingDestination",
			input:    mustMarshal(missingDestination),
			expError: errors.MissingFieldError{Field: "destination"},
		},
		{
			name:     "MissingSources",
			input:    mustMarshal(missingSources),
			expError: errors.MissingFieldError{Field: "sources"},
		},
		{
			name:  "IncorrectVersion",
			input: mustMarshal(wrongVersion),
			expError: errors.WithContext(incompatibleVersionError{
				path:   path,
				exp:    SupportedMirrorConfigVersion,
				actual: "v2",
			}, "parse"),
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			fs = afero.NewMemMapFs()
			assert.NoError(t, afero.WriteFile(fs, path, test.input, 0644))

			config, err := ParseMirror(path)
			assert.Equal(t, test.expError, err)
			assert.Equal(t, test.expConfig, config)
		})
	}
}

func TestParseMirrorMissingFile(t *testing.T) {
	fs = afero.NewMemMapFs()
	_, err := ParseMirror("dne.yaml")
	assert.Equal(t, errors.RootCause(err), errors.FileNotFound{Path: "dne.yaml"})
}

func mustMarshal(config Mirror) []byte {
	out, err := yaml.Marshal(config)
	if err != nil {
		panic(fmt.Sprintf("marshal config: %s", err))
	}
	return out
}
