package handlers

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/attend/internal/attendance"
	"github.com/your-org/attend/internal/models"
	"github.com/your-org/attend/internal/observability"
	"github.com/your-org/attend/internal/queue"
	"github.com/your-org/attend/internal/recognition"
	"github.com/your-org/attend/internal/storage"
	"github.com/your-org/attend/pkg/dto"
)

const timeOfDayFormat = "15:04:05"

type CheckinHandler struct {
	store       *recognition.EmbeddingStore
	coordinator *attendance.Coordinator
	minio       *storage.MinIOStore
	producer    *queue.Producer
	extractor   FaceExtractor
	threshold   float64
}

func NewCheckinHandler(
	store *recognition.EmbeddingStore,
	coordinator *attendance.Coordinator,
	minio *storage.MinIOStore,
	producer *queue.Producer,
	extractor FaceExtractor,
	threshold float64,
) *CheckinHandler {
	return &CheckinHandler{
		store:       store,
		coordinator: coordinator,
		minio:       minio,
		producer:    producer,
		extractor:   extractor,
		threshold:   threshold,
	}
}

// Checkin processes one recognition event: extract probe embeddings from
// the uploaded frame, resolve an identity against the full population and
// apply the day's ledger transition.
func (h *CheckinHandler) Checkin(c *gin.Context) {
	file, _, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file required"})
		return
	}
	defer file.Close()

	imageData, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read image failed"})
		return
	}

	if h.extractor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "face extractor not initialized"})
		return
	}

	probes, err := h.extractor.ExtractAll(imageData)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "failed to process image: " + err.Error()})
		return
	}

	// Snapshot the population once so every probe in this event is
	// compared against the same set of identities.
	population, err := h.store.All(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	observability.PopulationSize.Set(float64(len(population)))

	outcome, err := h.coordinator.Process(c.Request.Context(), probes, population, h.threshold, time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	observability.CheckinOutcomes.WithLabelValues(string(outcome.Kind)).Inc()

	c.JSON(http.StatusOK, h.respond(c, outcome, imageData))
}

func (h *CheckinHandler) respond(c *gin.Context, outcome *attendance.Outcome, imageData []byte) dto.CheckinResponse {
	switch outcome.Kind {
	case attendance.NoFaceDetected:
		return dto.CheckinResponse{
			Success: false,
			Outcome: string(outcome.Kind),
			Message: "No face found in the image.",
		}
	case attendance.NoMatch:
		return dto.CheckinResponse{
			Success: false,
			Outcome: string(outcome.Kind),
			Message: "Face not recognized. Please register first.",
		}
	}

	identity := outcome.Identity
	transition := outcome.Transition
	eventTime := outcome.EventTime.Format(timeOfDayFormat)

	snapshotKey := h.storeSnapshot(c, identity.ID, imageData)
	h.publishEvent(c, outcome, snapshotKey)

	resp := dto.CheckinResponse{
		Success:  true,
		Outcome:  string(outcome.Kind),
		Identity: &identity.ID,
		Name:     identity.Name,
		Time:     eventTime,
		Distance: outcome.Distance,
	}

	switch transition.Kind {
	case attendance.Arrived:
		resp.Type = "check_in"
		resp.Message = fmt.Sprintf("Welcome %s! Checked in at %s", identity.Name, eventTime)
	case attendance.DepartedFirst:
		resp.Type = "check_out"
		resp.Message = fmt.Sprintf("Goodbye %s! Checked out at %s", identity.Name, eventTime)
	case attendance.DepartedUpdated:
		prior := transition.PriorDeparture.Format(timeOfDayFormat)
		resp.Type = "check_out"
		resp.IsUpdate = true
		resp.PriorTime = prior
		resp.Message = fmt.Sprintf("Updated check-out for %s! New time: %s (previously %s)", identity.Name, eventTime, prior)
	}
	return resp
}

// storeSnapshot keeps the recognized frame for audit. Failures are logged,
// never surfaced: the attendance record is already committed.
func (h *CheckinHandler) storeSnapshot(c *gin.Context, identityID uuid.UUID, imageData []byte) string {
	if h.minio == nil {
		return ""
	}
	key := fmt.Sprintf("snapshots/%s/%s.jpg", identityID, time.Now().Format("20060102_150405"))
	if err := h.minio.PutObject(c.Request.Context(), key, imageData, "image/jpeg"); err != nil {
		slog.Warn("store checkin snapshot", "error", err, "identity_id", identityID)
		return ""
	}
	return key
}

func (h *CheckinHandler) publishEvent(c *gin.Context, outcome *attendance.Outcome, snapshotKey string) {
	if h.producer == nil {
		return
	}
	event := models.AttendanceEvent{
		IdentityID:     outcome.Identity.ID,
		IdentityName:   outcome.Identity.Name,
		EmployeeID:     outcome.Identity.EmployeeID,
		Transition:     string(outcome.Transition.Kind),
		EventTime:      outcome.EventTime,
		PriorDeparture: outcome.Transition.PriorDeparture,
		Distance:       outcome.Distance,
		SnapshotKey:    snapshotKey,
	}
	if err := h.producer.PublishAttendance(c.Request.Context(), outcome.Identity.ID.String(), event); err != nil {
		slog.Warn("publish attendance event", "error", err, "identity_id", outcome.Identity.ID)
	}
}
