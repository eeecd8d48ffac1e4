package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtureYAML = `folders:
  - path: C:\Shares\Finance
    owner: S-1-5-21-1-2-3-500
    mod_time: 2026-08-01T09:00:00Z
    aces:
      - sid: S-1-5-21-1-2-3-1000
        mask: 0x001F01FF
      - sid: S-1-5-21-1-2-3-1001
        mask: 0x00120089
        inherited: true
  - path: C:\Shares\Finance\Restricted
    owner: S-1-5-21-1-2-3-500
    protected: true
    aces:
      - sid: S-1-5-21-1-2-3-1000
        deny: true
        mask: 0x00000002
  - path: C:\Shares\Locked
    denied: true
`

func TestLoadStatic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "folders.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixtureYAML), 0o600))

	src, err := LoadStatic(path)
	require.NoError(t, err)

	ctx := context.Background()

	raw, err := src.ReadSecurityDescriptor(ctx, `C:\Shares\Finance`)
	require.NoError(t, err)
	d, err := ParseSecurityDescriptor(raw)
	require.NoError(t, err)
	assert.Equal(t, "S-1-5-21-1-2-3-500", d.OwnerSID)
	require.Len(t, d.ACEs, 2)
	assert.Equal(t, uint32(0x001F01FF), d.ACEs[0].Mask)
	assert.True(t, d.ACEs[1].Inherited)

	raw, err = src.ReadSecurityDescriptor(ctx, `C:\Shares\Finance\Restricted`)
	require.NoError(t, err)
	d, err = ParseSecurityDescriptor(raw)
	require.NoError(t, err)
	assert.True(t, d.Protected)
	assert.True(t, d.ACEs[0].Deny)

	_, err = src.ReadSecurityDescriptor(ctx, `C:\Shares\Locked`)
	assert.ErrorIs(t, err, ErrSourceDenied)

	mt, err := src.ModTime(ctx, `C:\Shares\Finance`)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC), mt.UTC())

	subdirs, err := src.Subdirs(ctx, `C:\Shares\Finance`)
	require.NoError(t, err)
	assert.Equal(t, []string{`C:\Shares\Finance\Restricted`}, subdirs)
}

func TestLoadStaticRejectsBadFixtures(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadStatic(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("folders:\n  - owner: S-1-1-0\n"), 0o600))
	_, err = LoadStatic(bad)
	assert.ErrorContains(t, err, "without a path")

	badTime := filepath.Join(dir, "badtime.yaml")
	require.NoError(t, os.WriteFile(badTime,
		[]byte("folders:\n  - path: C:\\X\n    mod_time: yesterday\n"), 0o600))
	_, err = LoadStatic(badTime)
	assert.ErrorContains(t, err, "invalid mod_time")
}
