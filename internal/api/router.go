package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/attend/internal/api/handlers"
	"github.com/your-org/attend/internal/api/ws"
	"github.com/your-org/attend/internal/attendance"
	"github.com/your-org/attend/internal/auth"
)

// Store is everything the API reads from and writes to Postgres.
type Store interface {
	handlers.EmbeddingStore
	handlers.PersonStore
	handlers.AttendanceStore
	handlers.CameraStore
}

type RouterConfig struct {
	APIKey       string
	Engine       handlers.FaceEngine
	Store        Store
	Objects      handlers.ObjectStore
	Gallery      handlers.GalleryUpdater
	Sessions     *attendance.Manager
	Control      handlers.ControlPublisher
	Hub          *ws.Hub
	Checks       map[string]handlers.Check
	SnapshotPath string
	DefaultFPS   int
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.New(corsConfig()))

	systemH := handlers.NewSystemHandler(cfg.Checks)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	if cfg.Hub != nil {
		v1.GET("/ws", cfg.Hub.HandleWS)
	}

	// Enrollment & recognition
	faceH := handlers.NewFaceHandler(cfg.Engine, cfg.Store, cfg.Objects, cfg.Gallery)
	faceH.SnapshotPath = cfg.SnapshotPath
	v1.POST("/process-images", faceH.ProcessImages)
	v1.POST("/recognize-face", faceH.RecognizeFace)
	v1.POST("/validate-face", faceH.ValidateFace)
	v1.GET("/embeddings/latest", faceH.LatestEmbeddings)

	// Persons
	personH := handlers.NewPersonHandler(cfg.Store, cfg.Objects, cfg.Gallery)
	personH.SnapshotPath = cfg.SnapshotPath
	v1.GET("/persons", personH.List)
	v1.DELETE("/persons/:name", personH.Delete)

	// Sessions
	sessionH := handlers.NewSessionHandler(cfg.Sessions)
	v1.POST("/sessions", sessionH.Create)
	v1.GET("/sessions", sessionH.List)
	v1.GET("/sessions/:id", sessionH.Get)
	v1.POST("/sessions/:id/frames", sessionH.SubmitFrame)
	v1.DELETE("/sessions/:id", sessionH.Close)

	// Attendance
	attH := handlers.NewAttendanceHandler(cfg.Sessions, cfg.Store)
	v1.POST("/attendance/mark", attH.Mark)
	v1.GET("/attendance/date/:date", attH.ByDate)

	// Cameras
	camH := handlers.NewCameraHandler(cfg.Store, cfg.Control, cfg.DefaultFPS)
	v1.POST("/cameras", camH.Create)
	v1.GET("/cameras", camH.List)
	v1.POST("/cameras/:id/start", camH.Start)
	v1.POST("/cameras/:id/stop", camH.Stop)
	v1.DELETE("/cameras/:id", camH.Delete)

	return r
}

func corsConfig() cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowAllOrigins = true
	cfg.AllowHeaders = append(cfg.AllowHeaders, "X-API-Key", "Authorization")
	return cfg
}
