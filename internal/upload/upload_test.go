package upload

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexusstore/internal/apperr"
)

type part struct {
	field, name string
	data        []byte
}

func multipartRequest(t *testing.T, parts ...part) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "ignored"))
	for _, p := range parts {
		w, err := mw.CreateFormFile(p.field, p.name)
		require.NoError(t, err)
		_, err = w.Write(p.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func stagedCount(t *testing.T, dir string) int {
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return len(entries)
}

func TestReceiveStagesFile(t *testing.T) {
	dir := t.TempDir()
	files, err := Receive(multipartRequest(t, part{"app", "Game.APK", []byte("pkg")}), PackageSpec(dir, 1024))
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, ".apk", files[0].Ext)
	assert.Equal(t, "Game.APK", files[0].OriginalName)
	assert.EqualValues(t, 3, files[0].Size)
	assert.True(t, strings.HasPrefix(files[0].Path, dir))

	b, err := os.ReadFile(files[0].Path)
	require.NoError(t, err)
	assert.Equal(t, "pkg", string(b))

	Cleanup(files)
	assert.Zero(t, stagedCount(t, dir))
}

func TestReceiveRejections(t *testing.T) {
	cases := []struct {
		name  string
		spec  func(dir string) Spec
		parts []part
		msg   string
	}{
		{"bad extension", func(d string) Spec { return IconSpec(d) }, []part{{"icon", "icon.gif", []byte("x")}}, "file type not allowed"},
		{"wrong field", func(d string) Spec { return IconSpec(d) }, []part{{"avatar", "icon.png", []byte("x")}}, "unexpected file field"},
		{"too large", func(d string) Spec { return PackageSpec(d, 4) }, []part{{"app", "a.apk", []byte("12345")}}, "file too large, max size: 4 B"},
		{"too many", func(d string) Spec { return PackageSpec(d, 10) }, []part{{"app", "a.apk", []byte("1")}, {"app", "b.apk", []byte("2")}}, "too many files uploaded"},
		{"no file", func(d string) Spec { return IconSpec(d) }, nil, "no file provided"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			_, err := Receive(multipartRequest(t, tc.parts...), tc.spec(dir))
			require.Error(t, err)
			assert.Equal(t, http.StatusBadRequest, apperr.Status(err))
			assert.Contains(t, err.Error(), tc.msg)
			assert.Zero(t, stagedCount(t, dir), "staged files must be cleaned up")
		})
	}
}

func TestReceiveScreenshots(t *testing.T) {
	dir := t.TempDir()
	files, err := Receive(multipartRequest(t,
		part{"screenshots", "one.png", []byte("1")},
		part{"screenshots", "two.webp", []byte("22")},
	), ScreenshotSpec(dir))
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, ".png", files[0].Ext)
	assert.Equal(t, ".webp", files[1].Ext)
}

func TestReceiveRequiresMultipart(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	_, err := Receive(req, IconSpec(t.TempDir()))
	assert.Equal(t, http.StatusBadRequest, apperr.Status(err))
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatSize(512))
	assert.Equal(t, "2.0 KB", FormatSize(2048))
	assert.Equal(t, "100.0 MB", FormatSize(100<<20))
	assert.Equal(t, "1.5 GB", FormatSize(3<<29))
}
