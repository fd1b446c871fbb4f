package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/attend/internal/attendance"
	"github.com/your-org/attend/internal/models"
	"github.com/your-org/attend/internal/storage"
	"github.com/your-org/attend/pkg/dto"
)

const dayFormat = "2006-01-02"

// AttendanceReader is the history/stats read path as the handler sees it.
// Implemented by storage.PostgresStore.
type AttendanceReader interface {
	GetIdentity(ctx context.Context, id uuid.UUID) (*models.Identity, error)
	ListAttendanceByIdentity(ctx context.Context, identityID uuid.UUID, limit int) ([]models.AttendanceDay, error)
	ListAttendanceByDay(ctx context.Context, day time.Time) ([]models.AttendanceDay, error)
	GetAttendanceStats(ctx context.Context, identityID uuid.UUID, from, to *time.Time) (*storage.AttendanceStats, error)
}

type AttendanceHandler struct {
	db  AttendanceReader
	loc *time.Location
	now func() time.Time
}

// NewAttendanceHandler builds the history handler. loc is the timezone the
// ledger keys days with, so defaults line up with what gets written.
func NewAttendanceHandler(db AttendanceReader, loc *time.Location) *AttendanceHandler {
	if loc == nil {
		loc = time.Local
	}
	return &AttendanceHandler{db: db, loc: loc, now: time.Now}
}

// History lists an identity's attendance records, newest day first.
func (h *AttendanceHandler) History(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity id"})
		return
	}

	identity, err := h.db.GetIdentity(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if identity == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "identity not found"})
		return
	}

	limit := 0
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	records, err := h.db.ListAttendanceByIdentity(c.Request.Context(), id, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, toAttendanceList(records))
}

// ByDay lists all attendance records for one calendar day. The default is
// today in the configured timezone, keyed the same way the ledger keys it.
func (h *AttendanceHandler) ByDay(c *gin.Context) {
	day := attendance.DayOf(h.now(), h.loc)
	if v := c.Query("date"); v != "" {
		parsed, err := time.Parse(dayFormat, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, want YYYY-MM-DD"})
			return
		}
		day = parsed
	}

	records, err := h.db.ListAttendanceByDay(c.Request.Context(), day)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, toAttendanceList(records))
}

// Stats summarises completion for an identity over an optional date range.
func (h *AttendanceHandler) Stats(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity id"})
		return
	}

	var from, to *time.Time
	if v := c.Query("from"); v != "" {
		parsed, err := time.Parse(dayFormat, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from date, want YYYY-MM-DD"})
			return
		}
		from = &parsed
	}
	if v := c.Query("to"); v != "" {
		parsed, err := time.Parse(dayFormat, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to date, want YYYY-MM-DD"})
			return
		}
		to = &parsed
	}

	stats, err := h.db.GetAttendanceStats(c.Request.Context(), id, from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}

func toAttendanceList(records []models.AttendanceDay) dto.AttendanceListResponse {
	resp := make([]dto.AttendanceDayResponse, 0, len(records))
	for _, rec := range records {
		r := dto.AttendanceDayResponse{
			ID:          rec.ID,
			IdentityID:  rec.IdentityID,
			Day:         rec.Day.Format(dayFormat),
			ArrivalTime: rec.ArrivalTime.Format(time.RFC3339),
		}
		if rec.DepartureTime != nil {
			r.DepartureTime = rec.DepartureTime.Format(time.RFC3339)
		}
		resp = append(resp, r)
	}
	return dto.AttendanceListResponse{Records: resp, Total: len(resp)}
}
