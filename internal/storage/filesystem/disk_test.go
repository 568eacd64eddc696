package filesystem

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/alexander-assets/internal/storage"
)

func newTestDisk(t *testing.T) *Disk {
	t.Helper()
	d, err := New(Config{Name: "local", Root: t.TempDir()}, zerolog.Nop())
	require.NoError(t, err)
	return d
}

func TestDisk_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	d := newTestDisk(t)

	err := d.Put(ctx, "assets/000/000/001/a.txt", strings.NewReader("hello"), 5, storage.PutOptions{})
	require.NoError(t, err)

	exists, err := d.Exists(ctx, "assets/000/000/001/a.txt")
	require.NoError(t, err)
	assert.True(t, exists)

	data, err := d.Get(ctx, "assets/000/000/001/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	size, err := d.Size(ctx, "assets/000/000/001/a.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)

	deleted, err := d.Delete(ctx, "assets/000/000/001/a.txt")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = d.Delete(ctx, "assets/000/000/001/a.txt")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = d.Get(ctx, "assets/000/000/001/a.txt")
	assert.ErrorIs(t, err, storage.ErrBlobNotFound)
}

func TestDisk_PutSizeMismatch(t *testing.T) {
	d := newTestDisk(t)

	err := d.Put(context.Background(), "a.txt", strings.NewReader("hello"), 10, storage.PutOptions{})
	require.Error(t, err)

	exists, err := d.Exists(context.Background(), "a.txt")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDisk_OpenRange(t *testing.T) {
	ctx := context.Background()
	d := newTestDisk(t)
	require.NoError(t, d.Put(ctx, "r.bin", strings.NewReader("0123456789"), -1, storage.PutOptions{}))

	rc, err := d.OpenRange(ctx, "r.bin", 3, 4)
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "3456", string(data))
}

func TestDisk_RejectsEscapingKeys(t *testing.T) {
	d := newTestDisk(t)

	// Leading ".." segments are clamped to the root rather than escaping it.
	require.NoError(t, d.Put(context.Background(), "../../x.txt", strings.NewReader("x"), 1, storage.PutOptions{}))
	exists, err := d.Exists(context.Background(), "x.txt")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = d.Get(context.Background(), "")
	assert.ErrorIs(t, err, storage.ErrInvalidKey)
}
