package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Session metrics
var (
	SessionsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tabclip_sessions_started_total",
			Help: "Total number of capture sessions that reached the active state",
		},
	)

	SessionsStopped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabclip_sessions_stopped_total",
			Help: "Total number of capture session teardowns by trigger",
		},
		[]string{"reason"},
	)

	AcquisitionsDenied = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tabclip_acquisitions_denied_total",
			Help: "Total number of stream acquisitions that were denied or failed",
		},
	)

	AcquisitionsSuperseded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tabclip_acquisitions_superseded_total",
			Help: "Total number of streams discarded because the session was cancelled while starting",
		},
	)

	SessionActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tabclip_session_active",
			Help: "1 while a capture session is active",
		},
	)
)

// Pipeline metrics
var (
	FramesComposited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tabclip_frames_composited_total",
			Help: "Total number of compositing ticks that copied a frame into the surface",
		},
	)

	ChunksRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tabclip_chunks_recorded_total",
			Help: "Total number of non-empty recorder chunks accumulated",
		},
	)

	ChunkBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tabclip_chunk_bytes_total",
			Help: "Total bytes of recorded chunks",
		},
	)
)

// Download metrics
var (
	DownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabclip_downloads_total",
			Help: "Total number of file emissions by outcome",
		},
		[]string{"status"}, // "ok", "error", "empty"
	)

	DownloadBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tabclip_download_size_bytes",
			Help:    "Size of emitted recording files",
			Buckets: prometheus.ExponentialBuckets(64*1024, 4, 8),
		},
	)
)
