package imagefolder

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o600))
	}
}

func basenames(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = filepath.Base(p)
	}
	return out
}

func TestList_SortsNumerically(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "10.500.jpg", "2.000.jpg", "1.250.PNG", "notes.txt", "cover.gif", "frame_0003.jpeg")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "results.jpg"), 0o750))

	paths, err := List(dir, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"cover.gif", "frame_0003.jpeg", "1.250.PNG", "2.000.jpg", "10.500.jpg"}, basenames(paths))
	assert.Equal(t, filepath.Join(dir, "cover.gif"), paths[0])
}

func TestList_Sampling(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "f1.jpg", "f2.jpg", "f3.jpg", "f4.jpg", "f5.jpg", "f6.jpg", "f7.jpg")

	tests := []struct {
		sampling int
		want     []string
	}{
		{sampling: 1, want: []string{"f1.jpg", "f2.jpg", "f3.jpg", "f4.jpg", "f5.jpg", "f6.jpg", "f7.jpg"}},
		{sampling: 3, want: []string{"f1.jpg", "f4.jpg", "f7.jpg"}},
		{sampling: 10, want: []string{"f1.jpg"}},
	}

	for _, tt := range tests {
		paths, err := List(dir, Options{Sampling: tt.sampling})
		require.NoError(t, err)
		assert.Equal(t, tt.want, basenames(paths), "sampling %d", tt.sampling)
	}

	_, err := List(dir, Options{Sampling: -1})
	assert.ErrorIs(t, err, ErrInvalidSampling)
}

func TestList_Errors(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "readme.md")

	_, err := List(dir, Options{})
	require.ErrorIs(t, err, ErrNoImages)

	_, err = List(filepath.Join(dir, "missing"), Options{})
	require.Error(t, err)
}

func TestList_CustomExtensions(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a1.webp", "a2.jpg")

	paths, err := List(dir, Options{Extensions: []string{".WEBP"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a1.webp"}, basenames(paths))
}

func TestSortNumeric(t *testing.T) {
	names := []string{
		"b.jpg",
		"a.jpg",
		"99999999999999999999999.jpg",
		"100000000000000000000000.jpg",
		"007.jpg",
		"x7.jpg",
	}
	SortNumeric(names)
	assert.Equal(t, []string{
		"a.jpg", "b.jpg", "007.jpg", "x7.jpg",
		"99999999999999999999999.jpg", "100000000000000000000000.jpg",
	}, names)
}

func TestResultsPath(t *testing.T) {
	now := time.Date(2024, 3, 9, 7, 5, 1, 0, time.Local)
	assert.Equal(t, filepath.Join("out", "analysis_results_20240309_070501.json"), ResultsPath("out", now))
	assert.Equal(t, filepath.Join("frames", "results"), DefaultOutputDir("frames"))
}
