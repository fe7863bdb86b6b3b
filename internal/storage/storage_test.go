package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage_PutGetDelete(t *testing.T) {
	stor, err := NewLocalStorage(t.TempDir(), "http://localhost:8080/")
	require.NoError(t, err)
	ctx := context.Background()

	url, err := stor.Put(ctx, "animals/a1_123_rex.jpg", "image/jpeg", strings.NewReader("jpeg-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/files/animals/a1_123_rex.jpg", url)

	name, ok := stor.ObjectName(url)
	require.True(t, ok)
	assert.Equal(t, "animals/a1_123_rex.jpg", name)

	rc, err := stor.Get(ctx, name)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))

	require.NoError(t, stor.Delete(ctx, name))
	_, err = stor.Get(ctx, name)
	assert.Error(t, err)

	// Deleting twice is fine
	assert.NoError(t, stor.Delete(ctx, name))
}

func TestLocalStorage_RejectsTraversal(t *testing.T) {
	stor, err := NewLocalStorage(t.TempDir(), "http://localhost:8080")
	require.NoError(t, err)

	_, err = stor.Put(context.Background(), "../escape.txt", "text/plain", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrInvalidObjectName)

	_, ok := stor.ObjectName("http://localhost:8080/files/a/../../etc/passwd")
	assert.False(t, ok)

	_, ok = stor.ObjectName("http://elsewhere/files/a.jpg")
	assert.False(t, ok)
}

func TestLocalStorage_ListByPrefix(t *testing.T) {
	stor, err := NewLocalStorage(t.TempDir(), "http://localhost:8080")
	require.NoError(t, err)
	ctx := context.Background()

	for _, name := range []string{
		"adoption-requests/temp_1/a.jpg",
		"adoption-requests/temp_1/b.jpg",
		"animals/x.jpg",
	} {
		_, err := stor.Put(ctx, name, "image/jpeg", strings.NewReader("x"))
		require.NoError(t, err)
	}

	objects, err := stor.List(ctx, "adoption-requests/")
	require.NoError(t, err)
	require.Len(t, objects, 2)
	for _, o := range objects {
		assert.True(t, strings.HasPrefix(o.Name, "adoption-requests/temp_1/"))
		assert.False(t, o.ModifiedAt.IsZero())
	}
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "rex.jpg", SafeName("rex.jpg"))
	assert.Equal(t, "passwd", SafeName("../../etc/passwd"))
	assert.Equal(t, "my_dog_photo.png", SafeName(`C:\Users\me\my dog photo.png`))
	assert.Equal(t, "file", SafeName(".."))
}
