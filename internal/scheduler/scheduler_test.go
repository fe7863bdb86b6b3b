package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"petadopt/internal/model"
	"petadopt/internal/storage"
	"petadopt/internal/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSweep_RemovesOnlyOldUnreferenced(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	blobs, err := storage.NewLocalStorage(dir, "http://localhost:8080")
	require.NoError(t, err)
	st := memory.New()

	put := func(name string, age time.Duration) string {
		url, err := blobs.Put(ctx, name, "image/jpeg", strings.NewReader("img"))
		require.NoError(t, err)
		mod := time.Now().Add(-age)
		require.NoError(t, os.Chtimes(filepath.Join(dir, filepath.FromSlash(name)), mod, mod))
		return url
	}

	orphanOld := "adoption-requests/temp_1/1_a_old.jpg"
	orphanNew := "adoption-requests/temp_2/1_b_new.jpg"
	referenced := "adoption-requests/temp_3/1_c_ref.jpg"
	animalPhoto := "animals/x_1_photo.jpg"

	put(orphanOld, 2*time.Hour)
	put(orphanNew, time.Minute)
	refURL := put(referenced, 2*time.Hour)
	put(animalPhoto, 2*time.Hour)

	require.NoError(t, st.CreateAdoptionRequest(ctx, model.AdoptionRequest{
		ID: "r1", AdopterID: "u1", OrganizationID: "o1", AnimalID: "a1",
		PhotoURLs: []string{refURL, "http://elsewhere/x.jpg", "http://elsewhere/y.jpg"},
		Status:    model.RequestPending, Declaration: true, SubmittedAt: time.Now(),
	}))

	sweeper := NewSweeper(st, blobs, time.Hour, zap.NewNop())
	removed, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	remaining, err := blobs.List(ctx, "")
	require.NoError(t, err)
	var names []string
	for _, o := range remaining {
		names = append(names, o.Name)
	}
	assert.ElementsMatch(t, []string{orphanNew, referenced, animalPhoto}, names)
}

func TestSweep_Empty(t *testing.T) {
	blobs, err := storage.NewLocalStorage(t.TempDir(), "http://localhost:8080")
	require.NoError(t, err)

	removed, err := NewSweeper(memory.New(), blobs, time.Hour, zap.NewNop()).Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestNewScheduler_InvalidSpec(t *testing.T) {
	_, err := NewScheduler("not a spec", nil, zap.NewNop())
	assert.Error(t, err)
}
