package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenewOutputPath(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "video.mp4")
	require.NoError(t, os.WriteFile(target, []byte("a"), 0644))

	assert.Equal(t, filepath.Join(dir, "video-(1).mp4"), AvailablePath(target))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "video-(1).mp4"), []byte("b"), 0644))
	assert.Equal(t, filepath.Join(dir, "video-(2).mp4"), AvailablePath(target))

	fresh := filepath.Join(dir, "other.mp4")
	assert.Equal(t, fresh, AvailablePath(fresh))
}

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"clip.mkv", "clip.mkv"},
		{"clip", "clip.mp4"},
		{"../../etc/passwd", "passwd.mp4"},
		{`a:b*c?.webm`, "a_b_c_.webm"},
		{"", "download.mp4"},
		{"dir\\name.mp3", "name.mp3"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeFileName(tt.in, ".mp4"), tt.in)
	}
	assert.Equal(t, "raw", SanitizeFileName("raw", ""))
}

func TestHeaderCookieEncoding(t *testing.T) {
	in := map[string]string{"Cookie": "sid=abc; theme=dark", "Referer": "https://example.com"}
	stored := EncodeHeaders(in)
	assert.NotEqual(t, in["Cookie"], stored["Cookie"])
	assert.Equal(t, in["Referer"], stored["Referer"])
	assert.Equal(t, in, DecodeHeaders(stored))

	// values that were never encoded survive decoding
	assert.Equal(t, "plain;", DecodeHeaders(map[string]string{"Cookie": "plain;"})["Cookie"])
	assert.Nil(t, EncodeHeaders(nil))
}

func TestParseHeaderArgs(t *testing.T) {
	got := ParseHeaderArgs([]string{"Authorization: Bearer x:y", "broken", " Accept :*/*"})
	assert.Equal(t, map[string]string{"Authorization": "Bearer x:y", "Accept": "*/*"}, got)
}

func TestTaskIDForIsStable(t *testing.T) {
	a := TaskIDFor("https://example.com/a.mp4")
	assert.Equal(t, a, TaskIDFor("https://example.com/a.mp4"))
	assert.NotEqual(t, a, TaskIDFor("https://example.com/b.mp4"))
}

func TestFileNameFromURL(t *testing.T) {
	assert.Equal(t, "my clip.mp4", FileNameFromURL("https://example.com/v/my%20clip.mp4?x=1"))
	assert.Equal(t, "obj.bin", FileNameFromURL("s3://bucket/path/obj.bin"))
	assert.Equal(t, "", FileNameFromURL("https://example.com/"))
}

func TestMoveFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "out", "dst.bin")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Dir(dst), 0755))

	require.NoError(t, MoveFile(src, dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.00 KB", FormatBytes(1024))
	assert.Equal(t, "1.50 MB", FormatBytes(1024*1024*3/2))
	assert.Equal(t, "downloading 1.00 KB / 2.00 KB (50.0%)", ProgressLine(1024, 2048))
	assert.Equal(t, "downloading 10 B", ProgressLine(10, -1))
}

func TestCleanTemp(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "task-a"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "task-b"), 0755))
	n, err := CleanTemp(root)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = CleanTemp(filepath.Join(root, "missing"))
	require.NoError(t, err)
	assert.Zero(t, n)
}
