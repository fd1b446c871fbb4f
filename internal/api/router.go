package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/attend/internal/api/handlers"
	"github.com/your-org/attend/internal/api/ws"
	"github.com/your-org/attend/internal/attendance"
	"github.com/your-org/attend/internal/auth"
	"github.com/your-org/attend/internal/queue"
	"github.com/your-org/attend/internal/recognition"
	"github.com/your-org/attend/internal/storage"
)

type RouterConfig struct {
	APIKey         string
	DB             *storage.PostgresStore
	MinIO          *storage.MinIOStore
	Producer       *queue.Producer
	Hub            *ws.Hub
	EmbeddingStore *recognition.EmbeddingStore
	Coordinator    *attendance.Coordinator
	Extractor      handlers.FaceExtractor
	MatchThreshold float64
	Location       *time.Location
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.DB, cfg.MinIO, cfg.Producer)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	// Live attendance board
	v1.GET("/ws", cfg.Hub.HandleWS)

	// Enrollment
	identityH := handlers.NewIdentityHandler(cfg.DB, cfg.MinIO, cfg.Extractor)
	v1.POST("/identities", identityH.Create)
	v1.GET("/identities", identityH.List)
	v1.GET("/identities/:id", identityH.Get)
	v1.GET("/identities/:id/portrait", identityH.Portrait)

	// Check-in
	checkinH := handlers.NewCheckinHandler(cfg.EmbeddingStore, cfg.Coordinator,
		cfg.MinIO, cfg.Producer, cfg.Extractor, cfg.MatchThreshold)
	v1.POST("/checkin", checkinH.Checkin)

	// Attendance history
	attendanceH := handlers.NewAttendanceHandler(cfg.DB, cfg.Location)
	v1.GET("/identities/:id/attendance", attendanceH.History)
	v1.GET("/identities/:id/attendance/stats", attendanceH.Stats)
	v1.GET("/attendance", attendanceH.ByDay)

	// Debug
	debugH := handlers.NewDebugHandler(cfg.DB, cfg.Extractor, cfg.MatchThreshold)
	v1.GET("/debug/identities", debugH.Identities)
	v1.POST("/debug/recognition", debugH.Recognition)

	return r
}
