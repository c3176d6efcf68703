package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	BytesDownloaded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vdl",
			Name:      "bytes_downloaded_total",
			Help:      "Payload bytes written to partial files.",
		},
	)

	DownloadsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vdl",
			Name:      "downloads_finished_total",
			Help:      "Download attempts that reached a terminal state.",
		},
		[]string{"status"},
	)

	ChunkFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vdl",
			Name:      "chunk_failures_total",
			Help:      "Chunk or stream workers that ended with a hard failure.",
		},
	)

	ProbeResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vdl",
			Name:      "probe_results_total",
			Help:      "Range probe outcomes.",
		},
		[]string{"result"},
	)

	ActiveDownloads = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vdl",
			Name:      "active_downloads",
			Help:      "Controllers currently running in this process.",
		},
	)

	Registry = prometheus.NewRegistry()
)

func init() {
	Registry.MustRegister(BytesDownloaded, DownloadsFinished, ChunkFailures, ProbeResults, ActiveDownloads)
}

// WriteTextfile dumps the registry in the node-exporter textfile format.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating metrics directory: %v", err)
	}
	return prometheus.WriteToTextfile(path, Registry)
}
