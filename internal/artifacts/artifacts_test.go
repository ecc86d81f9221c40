package artifacts

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir mirrors testing.T.Chdir for toolchains predating Go 1.24.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

// writeBlock creates a block file with a fixed modification time so the
// newest-wins selection is deterministic.
func writeBlock(t *testing.T, dir, name string, mtime time.Time) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("block-data"), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	return path
}

func TestKind_Pattern(t *testing.T) {
	assert.Equal(t, "*-shcblock.bin", KindSHCBlock.Pattern())
	assert.Equal(t, "*-pteblock.bin", KindPTEBlock.Pattern())
}

func TestCandidateDirs_WorkDirFirst(t *testing.T) {
	dirs := CandidateDirs("/tmp/work")
	require.Len(t, dirs, 4)
	assert.Equal(t, filepath.Join("/tmp/work", "block"), dirs[0])
	assert.Equal(t, filepath.Join("/tmp/work", "blocks"), dirs[1])
	assert.Equal(t, "./block", dirs[2])
	assert.Equal(t, "./blocks", dirs[3])
}

func TestFindLatest_NewestWins(t *testing.T) {
	work := t.TempDir()
	now := time.Now()

	writeBlock(t, filepath.Join(work, "block"), "old-shcblock.bin", now.Add(-time.Hour))
	newest := writeBlock(t, filepath.Join(work, "blocks"), "new-shcblock.bin", now)

	assert.Equal(t, newest, FindLatest(KindSHCBlock, work))
}

func TestFindLatest_IgnoresOtherKinds(t *testing.T) {
	work := t.TempDir()
	now := time.Now()

	writeBlock(t, filepath.Join(work, "block"), "dev-pteblock.bin", now)
	shc := writeBlock(t, filepath.Join(work, "block"), "dev-shcblock.bin", now.Add(-time.Hour))

	assert.Equal(t, shc, FindLatest(KindSHCBlock, work))
}

func TestFindLatest_Empty(t *testing.T) {
	chdir(t, t.TempDir())
	assert.Empty(t, FindLatest(KindSHCBlock, t.TempDir()))
}

func TestFindLatest_ToolRelativeFallback(t *testing.T) {
	cwd := t.TempDir()
	chdir(t, cwd)
	work := filepath.Join(cwd, "work")

	fallback := writeBlock(t, "./block", "dev-shcblock.bin", time.Now())

	got := FindLatest(KindSHCBlock, work)
	require.NotEmpty(t, got)
	assert.Equal(t, filepath.Base(fallback), filepath.Base(got))
}

func TestAdoptLatest(t *testing.T) {
	cwd := t.TempDir()
	chdir(t, cwd)
	work := filepath.Join(cwd, "work")
	require.NoError(t, EnsureLayout(work))

	now := time.Now()
	writeBlock(t, "./block", "old-pteblock.bin", now.Add(-time.Hour))
	writeBlock(t, "./blocks", "new-pteblock.bin", now)

	dest, err := AdoptLatest(KindPTEBlock, work)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(work, "block", "new-pteblock.bin"), dest)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "block-data", string(data))
}

func TestAdoptLatest_NothingToAdopt(t *testing.T) {
	chdir(t, t.TempDir())

	dest, err := AdoptLatest(KindSHCBlock, t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, dest)
}

func TestEnsureLayout(t *testing.T) {
	work := filepath.Join(t.TempDir(), "session")
	require.NoError(t, EnsureLayout(work))

	for _, sub := range []string{"ipsw", "block", "logs"} {
		info, err := os.Stat(filepath.Join(work, sub))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestCopyFirmware(t *testing.T) {
	work := t.TempDir()
	src := filepath.Join(t.TempDir(), "iPhone8,1_15.1.ipsw")
	require.NoError(t, os.WriteFile(src, []byte("firmware"), 0o644))

	dest, err := CopyFirmware(src, work)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(work, "ipsw", "iPhone8,1_15.1.ipsw"), dest)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "firmware", string(data))
}

func TestFindImage4Set(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"0x1234-iBoot.img4",
		"0x1234-signed-SEP.img4",
		"0x1234-target-SEP.im4p",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("img"), 0o644))
	}

	set, err := FindImage4Set(dir)
	require.NoError(t, err)
	assert.Contains(t, set.IBoot, "iBoot")
	assert.Contains(t, set.SignedSEP, "signed-SEP")
	assert.Contains(t, set.TargetSEP, "target-SEP")
}

func TestFindImage4Set_Incomplete(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0x1-iBoot.img4"), []byte("img"), 0o644))

	_, err := FindImage4Set(dir)
	assert.Error(t, err)
}

func TestFindImage4Set_MissingDir(t *testing.T) {
	_, err := FindImage4Set(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
