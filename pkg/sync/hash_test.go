package sync

import (
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashFile(t *testing.T) {
	fs = afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/data/file", []byte("contents"), 0644))

	hasher := sha512.New()
	fmt.Fprint(hasher, "contents")
	exp := base64.StdEncoding.EncodeToString(hasher.Sum(nil))

	actual, err := HashFile("/data/file")
	assert.NoError(t, err)
	assert.Equal(t, exp, actual)

	_, err = HashFile("/dne")
	assert.Error(t, err)
}
