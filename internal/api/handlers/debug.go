package handlers

import (
	"io"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/your-org/attend/internal/recognition"
	"github.com/your-org/attend/internal/storage"
	"github.com/your-org/attend/pkg/dto"
)

// DebugHandler exposes the raw matching internals for tuning the
// threshold and diagnosing bad enrollments.
type DebugHandler struct {
	db        *storage.PostgresStore
	extractor FaceExtractor
	threshold float64
}

func NewDebugHandler(db *storage.PostgresStore, extractor FaceExtractor, threshold float64) *DebugHandler {
	return &DebugHandler{db: db, extractor: extractor, threshold: threshold}
}

// Identities reports the embedding health of every enrolled identity,
// including rows the match pass would skip as corrupt.
func (h *DebugHandler) Identities(c *gin.Context) {
	identities, err := h.db.ListIdentities(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	info := make([]dto.IdentityDebugInfo, 0, len(identities))
	for _, ident := range identities {
		info = append(info, dto.IdentityDebugInfo{
			ID:              ident.ID,
			Name:            ident.Name,
			EmployeeID:      ident.EmployeeID,
			Email:           ident.Email,
			EmbeddingValid:  len(ident.Embedding) == recognition.EmbeddingDim,
			EmbeddingLength: len(ident.Embedding),
			PortraitKey:     ident.PortraitKey,
			CreatedAt:       ident.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}

	c.JSON(http.StatusOK, gin.H{"total_identities": len(info), "identities": info})
}

// Recognition runs a full distance table for an uploaded image: every
// detected face against every enrolled identity, nearest first.
func (h *DebugHandler) Recognition(c *gin.Context) {
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

	identities, err := h.db.ListIdentities(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	results := make([]dto.DebugProbeResult, 0, len(probes))
	for i, probe := range probes {
		matches := make([]dto.DebugMatch, 0, len(identities))
		for _, ident := range identities {
			// Corrupt rows yield an infinite distance, which JSON cannot
			// carry; their health shows up in the identities report instead.
			if len(ident.Embedding) != recognition.EmbeddingDim {
				continue
			}
			d := recognition.EuclideanDistance(probe, ident.Embedding)
			matches = append(matches, dto.DebugMatch{
				IdentityID: ident.ID,
				Name:       ident.Name,
				EmployeeID: ident.EmployeeID,
				Distance:   d,
				IsMatch:    d < h.threshold,
			})
		}
		sort.Slice(matches, func(a, b int) bool {
			return matches[a].Distance < matches[b].Distance
		})
		results = append(results, dto.DebugProbeResult{ProbeIndex: i, Matches: matches})
	}

	c.JSON(http.StatusOK, dto.DebugRecognitionResponse{
		FacesDetected: len(probes),
		Population:    len(identities),
		Threshold:     h.threshold,
		Results:       results,
	})
}
