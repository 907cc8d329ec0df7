package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attend",
		Name:      "frames_processed_total",
		Help:      "Total number of frames processed",
	}, []string{"camera_id"})

	FacesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attend",
		Name:      "faces_detected_total",
		Help:      "Total number of frames in which a face was located",
	}, []string{"camera_id"})

	FacesRecognized = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attend",
		Name:      "faces_recognized_total",
		Help:      "Total number of gallery matches above threshold",
	}, []string{"camera_id"})

	AlignmentFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "attend",
		Name:      "alignment_fallbacks_total",
		Help:      "Faces normalized from the unaligned crop",
	})

	EnrollmentRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attend",
		Name:      "enrollment_rejections_total",
		Help:      "Enrollment images rejected by validation",
	}, []string{"reason"})

	AttendanceMarked = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "attend",
		Name:      "attendance_marked_total",
		Help:      "Attendance records emitted",
	})

	TrackedFaces = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "attend",
		Name:      "tracked_faces",
		Help:      "Faces currently held by a session tracker",
	}, []string{"session_id"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "attend",
		Name:      "active_sessions",
		Help:      "Number of open attendance sessions",
	})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "attend",
		Name:      "inference_duration_seconds",
		Help:      "Duration of pipeline stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "attend",
		Name:      "queue_depth",
		Help:      "Number of pending frame tasks in queue",
	})

	ActiveCameras = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "attend",
		Name:      "active_cameras",
		Help:      "Number of cameras currently being captured",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "attend",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "attend",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
