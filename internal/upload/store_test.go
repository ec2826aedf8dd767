package upload

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"widget.png", "widget.png"},
		{"../../etc/passwd", "passwd"},
		{"..\\..\\boot.ini", "boot.ini"},
		{"my photo (1).jpg", "my_photo__1_.jpg"},
		{"..", ""},
		{"", ""},
		{"___", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeFilename(tt.in), "input %q", tt.in)
	}
}

func multipartFile(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("image", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(1<<20))
	return req.MultipartForm.File["image"][0]
}

func TestStore_SaveAndRemove(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	fh := multipartFile(t, "widget.png", []byte("png-bytes"))
	name, err := store.Save(fh)
	require.NoError(t, err)
	assert.Equal(t, "widget.png", name)

	data, err := os.ReadFile(filepath.Join(store.Dir, name))
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)

	require.NoError(t, store.Remove(name))
	_, err = os.Stat(filepath.Join(store.Dir, name))
	assert.True(t, os.IsNotExist(err))

	// removal is best-effort: a second remove is not an error
	require.NoError(t, store.Remove(name))
	require.NoError(t, store.Remove(""))
}

func TestStore_Save_TraversalName(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewStore(filepath.Join(dir, "uploads"))
	require.NoError(t, err)

	fh := multipartFile(t, "evil.png", []byte("x"))
	fh.Filename = "../escape.png"

	name, err := store.Save(fh)
	require.NoError(t, err)
	assert.Equal(t, "escape.png", name)

	_, err = os.Stat(filepath.Join(dir, "escape.png"))
	assert.True(t, os.IsNotExist(err), "file must stay inside the store dir")
	_, err = os.Stat(filepath.Join(store.Dir, "escape.png"))
	assert.NoError(t, err)
}

func TestStore_LastWriteWins(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save(multipartFile(t, "a.png", []byte("first")))
	require.NoError(t, err)
	_, err = store.Save(multipartFile(t, "a.png", []byte("second")))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(store.Dir, "a.png"))
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), data)
}
