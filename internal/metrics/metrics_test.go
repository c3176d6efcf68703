package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAndTextfile(t *testing.T) {
	before := testutil.ToFloat64(DownloadsFinished.WithLabelValues("success"))
	DownloadsFinished.WithLabelValues("success").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(DownloadsFinished.WithLabelValues("success")))

	BytesDownloaded.Add(42)
	path := filepath.Join(t.TempDir(), "nested", "vdl.prom")
	require.NoError(t, WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "vdl_bytes_downloaded_total")
	assert.Contains(t, string(data), `vdl_downloads_finished_total{status="success"}`)

	require.NoError(t, WriteTextfile(""))
}
