package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/attend/internal/storage"
	"github.com/your-org/attend/internal/vision"
	"github.com/your-org/attend/pkg/dto"
)

// FaceExtractor is the embedding-extractor collaborator as the handlers
// see it. Implemented by vision.Extractor.
type FaceExtractor interface {
	ExtractAll(imageData []byte) ([][]float32, error)
	ExtractOne(imageData []byte) ([]float32, error)
}

type IdentityHandler struct {
	db        *storage.PostgresStore
	minio     *storage.MinIOStore
	extractor FaceExtractor
}

func NewIdentityHandler(db *storage.PostgresStore, minio *storage.MinIOStore, extractor FaceExtractor) *IdentityHandler {
	return &IdentityHandler{db: db, minio: minio, extractor: extractor}
}

// Create enrolls a new identity from a multipart form: name, email,
// employee_id and a portrait image containing exactly one usable face.
func (h *IdentityHandler) Create(c *gin.Context) {
	name := c.PostForm("name")
	email := c.PostForm("email")
	employeeID := c.PostForm("employee_id")
	if name == "" || email == "" || employeeID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name, email and employee_id are required"})
		return
	}

	file, header, err := c.Request.FormFile("image")
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

	embedding, err := h.extractor.ExtractOne(imageData)
	if err != nil {
		if errors.Is(err, vision.ErrNoFace) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no face found in the image, please retake the photo"})
			return
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "failed to extract face: " + err.Error()})
		return
	}

	portraitKey := "portraits/" + employeeID + "_" + uuid.New().String() + "_" + header.Filename
	if err := h.minio.PutObject(c.Request.Context(), portraitKey, imageData, header.Header.Get("Content-Type")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store portrait failed"})
		return
	}

	identity, err := h.db.CreateIdentity(c.Request.Context(), name, email, employeeID, embedding, portraitKey)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrEmailExists):
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
		case errors.Is(err, storage.ErrEmployeeIDExists):
			c.JSON(http.StatusConflict, gin.H{"error": "employee id already registered"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusCreated, dto.IdentityResponse{
		ID:          identity.ID,
		Name:        identity.Name,
		Email:       identity.Email,
		EmployeeID:  identity.EmployeeID,
		PortraitURL: "/v1/identities/" + identity.ID.String() + "/portrait",
		CreatedAt:   identity.CreatedAt.Format("2006-01-02T15:04:05Z"),
	})
}

func (h *IdentityHandler) List(c *gin.Context) {
	identities, err := h.db.ListIdentities(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.IdentityResponse, 0, len(identities))
	for _, ident := range identities {
		resp = append(resp, dto.IdentityResponse{
			ID:          ident.ID,
			Name:        ident.Name,
			Email:       ident.Email,
			EmployeeID:  ident.EmployeeID,
			PortraitURL: "/v1/identities/" + ident.ID.String() + "/portrait",
			CreatedAt:   ident.CreatedAt.Format("2006-01-02T15:04:05Z"),
		})
	}

	c.JSON(http.StatusOK, dto.IdentityListResponse{Identities: resp, Total: len(resp)})
}

func (h *IdentityHandler) Get(c *gin.Context) {
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

	c.JSON(http.StatusOK, dto.IdentityResponse{
		ID:          identity.ID,
		Name:        identity.Name,
		Email:       identity.Email,
		EmployeeID:  identity.EmployeeID,
		PortraitURL: "/v1/identities/" + identity.ID.String() + "/portrait",
		CreatedAt:   identity.CreatedAt.Format("2006-01-02T15:04:05Z"),
	})
}

// Portrait serves the enrollment image from object storage.
func (h *IdentityHandler) Portrait(c *gin.Context) {
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
	if identity == nil || identity.PortraitKey == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "portrait not found"})
		return
	}

	data, err := h.minio.GetObject(c.Request.Context(), identity.PortraitKey)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "portrait not found"})
		return
	}

	c.Data(http.StatusOK, "image/jpeg", data)
}
