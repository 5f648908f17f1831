package artifacts

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScratch(t *testing.T, scratch, fragment, name, content string) {
	t.Helper()
	p := filepath.Join(scratch, filepath.FromSlash(fragment), name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func TestLocalStoreRelocate(t *testing.T) {
	t.Parallel()

	scratch, results := t.TempDir(), t.TempDir()
	s := NewLocalStore(scratch, results)
	fragment := "pmp/enso/abc/1"
	writeScratch(t, scratch, fragment, "out.log", "log")
	writeScratch(t, scratch, fragment, "plots/map.png", "png")

	ctx := context.Background()
	require.NoError(t, s.Relocate(ctx, fragment, "out.log"))
	require.NoError(t, s.Relocate(ctx, fragment, "plots/map.png"))

	data, err := os.ReadFile(filepath.Join(s.Location(fragment), "out.log"))
	require.NoError(t, err)
	assert.Equal(t, "log", string(data))
	assert.FileExists(t, filepath.Join(results, "pmp", "enso", "abc", "1", "plots", "map.png"))

	entries, err := os.ReadDir(s.Location(fragment))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".relocate-", "temp files must not be left behind")
	}
}

func TestLocalStoreRelocateMissingFile(t *testing.T) {
	t.Parallel()

	s := NewLocalStore(t.TempDir(), t.TempDir())
	err := s.Relocate(context.Background(), "pmp/enso/abc/1", "out.log")
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestLocalStoreRemove(t *testing.T) {
	t.Parallel()

	scratch, results := t.TempDir(), t.TempDir()
	s := NewLocalStore(scratch, results)
	fragment := "pmp/enso/abc/1"
	writeScratch(t, scratch, fragment, "out.log", "log")
	require.NoError(t, s.Relocate(context.Background(), fragment, "out.log"))

	require.NoError(t, s.Remove(context.Background(), fragment))
	assert.NoDirExists(t, s.Location(fragment))
	assert.NoDirExists(t, filepath.Join(scratch, "pmp", "enso", "abc", "1"))
}

func TestMinioConfigValidate(t *testing.T) {
	t.Parallel()

	valid := MinioConfig{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b", Bucket: "results"}
	assert.NoError(t, valid.Validate())

	withScheme := valid
	withScheme.Endpoint = "http://localhost:9000"
	assert.Error(t, withScheme.Validate())

	noBucket := valid
	noBucket.Bucket = ""
	assert.Error(t, noBucket.Validate())
}

func TestMinioStoreLocationAndMissingFile(t *testing.T) {
	t.Parallel()

	s, err := NewMinioStore(MinioConfig{
		Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b", Bucket: "results", Prefix: "/ref/",
	}, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "s3://results/ref/pmp/enso/abc/1", s.Location("pmp/enso/abc/1"))

	err = s.Relocate(context.Background(), "pmp/enso/abc/1", "out.log")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}
