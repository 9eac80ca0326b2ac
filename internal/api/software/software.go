// Package software serves the shared software catalog: public listings,
// admin maintenance and installer artifacts.
package software

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/serversoft/serversoft/internal/api/httperr"
	"github.com/serversoft/serversoft/internal/catalog"
	"github.com/serversoft/serversoft/internal/db/models"
	"github.com/serversoft/serversoft/internal/db/repositories"
	"github.com/serversoft/serversoft/internal/storage"
)

const (
	defaultMaxUpload  = 512 << 20
	signedURLTTL      = 15 * time.Minute
	maxNameLength     = 255
	artifactFormField = "file"
)

// Handlers serves /api/v1/software.
type Handlers struct {
	softwareRepo *repositories.SoftwareRepository
	catalog      *catalog.Catalog
	storage      storage.Storage
	maxUpload    int64
}

// NewHandlers creates the catalog handlers. store may be nil, in which case
// artifact endpoints answer 503.
func NewHandlers(softwareRepo *repositories.SoftwareRepository, cat *catalog.Catalog, store storage.Storage, maxUpload int64) *Handlers {
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}
	return &Handlers{softwareRepo: softwareRepo, catalog: cat, storage: store, maxUpload: maxUpload}
}

type softwareResponse struct {
	*models.Software
	HasArtifact bool `json:"has_artifact"`
}

func toResponse(s *models.Software) softwareResponse {
	return softwareResponse{Software: s, HasArtifact: s.HasArtifact()}
}

// @Summary      List software
// @Description  Returns the catalog, optionally filtered by category, plus every known category.
// @Tags         Software
// @Produce      json
// @Param        category  query  string  false  "Category filter"
// @Success      200  {object}  map[string]interface{}
// @Router       /api/v1/software [get]
func (h *Handlers) ListSoftwareHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		category := strings.TrimSpace(c.Query("category"))
		items, err := h.catalog.List(ctx, category)
		if err != nil {
			httperr.Internal(c, "Failed to list software", err)
			return
		}
		categories, err := h.catalog.Categories(ctx)
		if err != nil {
			httperr.Internal(c, "Failed to list categories", err)
			return
		}
		out := make([]softwareResponse, 0, len(items))
		for _, s := range items {
			out = append(out, toResponse(s))
		}
		c.JSON(http.StatusOK, gin.H{"software": out, "categories": categories})
	}
}

// ListCategoriesHandler returns the distinct catalog categories.
func (h *Handlers) ListCategoriesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		categories, err := h.catalog.Categories(c.Request.Context())
		if err != nil {
			httperr.Internal(c, "Failed to list categories", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"categories": categories})
	}
}

func (h *Handlers) load(c *gin.Context) (*models.Software, bool) {
	s, err := h.softwareRepo.GetSoftware(c.Request.Context(), c.Param("id"))
	if err != nil {
		httperr.Internal(c, "Failed to load software", err)
		return nil, false
	}
	if s == nil {
		httperr.NotFound(c, "Software")
		return nil, false
	}
	return s, true
}

// GetSoftwareHandler returns one catalog entry.
func (h *Handlers) GetSoftwareHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := h.load(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, toResponse(s))
	}
}

// SoftwareRequest is the body of POST and PUT /api/v1/software.
type SoftwareRequest struct {
	Name        string `json:"name" binding:"required"`
	Category    string `json:"category"`
	Version     string `json:"version" binding:"required"`
	Description string `json:"description"`
}

func (req *SoftwareRequest) normalize() error {
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.ToLower(strings.TrimSpace(req.Category))
	req.Version = strings.TrimSpace(req.Version)
	req.Description = strings.TrimSpace(req.Description)
	if req.Name == "" {
		return errors.New("name is required")
	}
	if len(req.Name) > maxNameLength || len(req.Category) > maxNameLength {
		return errors.New("name and category must be at most 255 characters")
	}
	if err := catalog.ValidateVersion(req.Version); err != nil {
		return err
	}
	return nil
}

func bindSoftware(c *gin.Context) (*SoftwareRequest, bool) {
	var req SoftwareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.BadRequest(c, "Invalid request: "+err.Error())
		return nil, false
	}
	if err := req.normalize(); err != nil {
		httperr.BadRequest(c, err.Error())
		return nil, false
	}
	return &req, true
}

// CreateSoftwareHandler adds a catalog entry. Admin only.
func (h *Handlers) CreateSoftwareHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		req, ok := bindSoftware(c)
		if !ok {
			return
		}
		s := &models.Software{
			Name:        req.Name,
			Category:    req.Category,
			Version:     req.Version,
			Description: req.Description,
		}
		if err := h.softwareRepo.CreateSoftware(c.Request.Context(), s); err != nil {
			httperr.Repo(c, err, "Software", "Failed to create software")
			return
		}
		h.catalog.Invalidate()
		c.JSON(http.StatusCreated, toResponse(s))
	}
}

// UpdateSoftwareHandler rewrites a catalog entry's descriptive fields. Bumping
// the version is what makes installations report update_available.
func (h *Handlers) UpdateSoftwareHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		req, ok := bindSoftware(c)
		if !ok {
			return
		}
		s, ok := h.load(c)
		if !ok {
			return
		}
		s.Name = req.Name
		s.Category = req.Category
		s.Version = req.Version
		s.Description = req.Description
		if err := h.softwareRepo.UpdateSoftware(c.Request.Context(), s); err != nil {
			httperr.Repo(c, err, "Software", "Failed to update software")
			return
		}
		h.catalog.Invalidate()
		c.JSON(http.StatusOK, toResponse(s))
	}
}

// @Summary      Delete software
// @Description  Removes a catalog entry and its stored installer. Entries with installations are refused.
// @Tags         Software
// @Security     Bearer
// @Param        id  path  string  true  "Software ID"
// @Success      200  {object}  map[string]interface{}
// @Failure      409  {object}  map[string]interface{}  "Still installed somewhere"
// @Router       /api/v1/software/{id} [delete]
func (h *Handlers) DeleteSoftwareHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := h.load(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		if err := h.softwareRepo.DeleteSoftware(ctx, s.ID); err != nil {
			httperr.Repo(c, err, "Software", "Failed to delete software")
			return
		}
		h.catalog.Invalidate()

		if s.HasArtifact() && h.storage != nil {
			if err := h.storage.Delete(ctx, *s.ArtifactPath); err != nil {
				slog.Warn("failed to delete installer artifact", "software_id", s.ID, "path", *s.ArtifactPath, "error", err)
			}
		}
		c.JSON(http.StatusOK, gin.H{"message": "Software deleted"})
	}
}

// @Summary      Upload installer artifact
// @Description  Stores the installer for a catalog entry, replacing any previous one. multipart/form-data with a "file" part.
// @Tags         Software
// @Security     Bearer
// @Accept       multipart/form-data
// @Param        id    path      string  true  "Software ID"
// @Param        file  formData  file    true  "Installer"
// @Success      200  {object}  map[string]interface{}
// @Failure      413  {object}  map[string]interface{}  "Artifact too large"
// @Router       /api/v1/software/{id}/artifact [post]
func (h *Handlers) UploadArtifactHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.storage == nil {
			httperr.Abort(c, http.StatusServiceUnavailable, "Artifact storage is not configured")
			return
		}
		s, ok := h.load(c)
		if !ok {
			return
		}

		if c.Request.ContentLength > h.maxUpload {
			httperr.Abort(c, http.StatusRequestEntityTooLarge, tooLarge(h.maxUpload))
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)

		reader, err := c.Request.MultipartReader()
		if err != nil {
			httperr.BadRequest(c, "Expected multipart/form-data with a file part")
			return
		}
		var (
			filename string
			part     io.ReadCloser
		)
		for {
			p, err := reader.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				h.uploadFailed(c, err)
				return
			}
			if p.FormName() == artifactFormField && p.FileName() != "" {
				filename, part = p.FileName(), p
				break
			}
			p.Close()
		}
		if part == nil {
			httperr.BadRequest(c, "Missing file part")
			return
		}
		defer part.Close()

		ctx := c.Request.Context()
		path := storage.ArtifactPath(s.ID, filename)
		res, err := h.storage.Upload(ctx, path, part, -1)
		if err != nil {
			h.uploadFailed(c, err)
			return
		}
		if s.HasArtifact() && *s.ArtifactPath != res.Path {
			if err := h.storage.Delete(ctx, *s.ArtifactPath); err != nil {
				slog.Warn("failed to delete replaced installer artifact", "software_id", s.ID, "path", *s.ArtifactPath, "error", err)
			}
		}
		if err := h.softwareRepo.SetArtifact(ctx, s.ID, res.Path, res.Checksum, res.Size); err != nil {
			httperr.Repo(c, err, "Software", "Failed to record artifact")
			return
		}
		h.catalog.Invalidate()

		c.JSON(http.StatusOK, gin.H{
			"software_id": s.ID,
			"filename":    filename,
			"checksum":    res.Checksum,
			"size":        res.Size,
		})
	}
}

func (h *Handlers) uploadFailed(c *gin.Context, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		httperr.Abort(c, http.StatusRequestEntityTooLarge, tooLarge(h.maxUpload))
		return
	}
	httperr.Internal(c, "Failed to store artifact", err)
}

func tooLarge(limit int64) string {
	return fmt.Sprintf("Artifact exceeds the %d MiB upload limit", limit>>20)
}

// DownloadArtifactHandler redirects to a signed URL when the backend offers
// one and streams the object otherwise.
func (h *Handlers) DownloadArtifactHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.storage == nil {
			httperr.Abort(c, http.StatusServiceUnavailable, "Artifact storage is not configured")
			return
		}
		s, ok := h.load(c)
		if !ok {
			return
		}
		if !s.HasArtifact() {
			httperr.NotFound(c, "Artifact")
			return
		}

		ctx := c.Request.Context()
		url, err := h.storage.SignedURL(ctx, *s.ArtifactPath, signedURLTTL)
		if err == nil {
			c.Redirect(http.StatusFound, url)
			return
		}
		if !errors.Is(err, storage.ErrSignedURLUnsupported) {
			httperr.Internal(c, "Failed to sign artifact URL", err)
			return
		}

		body, err := h.storage.Download(ctx, *s.ArtifactPath)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				httperr.NotFound(c, "Artifact")
				return
			}
			httperr.Internal(c, "Failed to open artifact", err)
			return
		}
		defer body.Close()

		size := int64(-1)
		if s.ArtifactSize != nil {
			size = *s.ArtifactSize
		}
		headers := map[string]string{
			"Content-Disposition": fmt.Sprintf(`attachment; filename="%s"`, artifactFilename(*s.ArtifactPath)),
		}
		if s.ArtifactChecksum != nil {
			headers["X-Checksum-Sha256"] = *s.ArtifactChecksum
		}
		c.DataFromReader(http.StatusOK, size, "application/octet-stream", body, headers)
	}
}

func artifactFilename(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}
