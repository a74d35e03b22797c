package server

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/voxlabs/voxscribe/pkg/registry"
)

func (s *Server) handleHealth(c *gin.Context) {
	ctx := c.Request.Context()
	backends := gin.H{}
	status := "ok"

	if s.backends.STT != nil {
		ok := s.backends.STT.IsAvailable(ctx)
		backends[s.backends.STT.Name()] = ok
		if !ok {
			status = "degraded"
		}
	}
	if s.backends.Diarizer != nil {
		backends[s.backends.Diarizer.Name()] = s.backends.Diarizer.IsAvailable(ctx)
	}
	if s.backends.Embedder != nil {
		backends[s.backends.Embedder.Name()] = s.backends.Embedder.IsAvailable(ctx)
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   status,
		"backends": backends,
	})
}

// handleTranscribe accepts a multipart audio upload and runs it through the
// pipeline synchronously, returning the completed transcript.
func (s *Server) handleTranscribe(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
		return
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !s.extensionAllowed(ext) {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unsupported file type %q", ext)})
		return
	}
	maxBytes := s.cfg.Server.MaxUploadMB << 20
	if file.Size > maxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("file exceeds the %d MB upload limit", s.cfg.Server.MaxUploadMB),
		})
		return
	}

	uploadID := uuid.NewString()[:8]
	uploadPath := filepath.Join(s.cfg.Storage.UploadDir, uploadID+ext)
	if err := c.SaveUploadedFile(file, uploadPath); err != nil {
		s.log.Error().Err(err).Msg("Upload save failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store upload"})
		return
	}
	if !s.cfg.Storage.KeepTempFiles {
		defer os.Remove(uploadPath)
	}

	record, err := s.pipeline.Process(c.Request.Context(), uploadPath, uploadID, file.Filename)
	if err != nil {
		s.log.Error().Err(err).Str("upload_id", uploadID).Msg("Processing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, record)
}

func (s *Server) handleListTranscripts(c *gin.Context) {
	page := queryInt(c, "page", 1)
	perPage := queryInt(c, "per_page", 20)

	records, total, err := s.store.List(page, perPage)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"transcripts": records,
		"total":       total,
		"page":        page,
		"per_page":    perPage,
	})
}

func (s *Server) handleGetTranscript(c *gin.Context) {
	record, err := s.store.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "transcript not found"})
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Server) handleListSpeakers(c *gin.Context) {
	speakers, err := s.registry.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"speakers": speakers})
}

func (s *Server) handleGetSpeaker(c *gin.Context) {
	id := c.Param("id")
	sp, err := s.registry.Get(id)
	if errors.Is(err, registry.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "speaker not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	appearances, err := s.registry.Appearances(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"speaker":     sp,
		"appearances": appearances,
	})
}

func (s *Server) handleRenameSpeaker(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	if err := s.registry.Rename(c.Param("id"), req.Name); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "renamed"})
}

func (s *Server) handleDeleteSpeaker(c *gin.Context) {
	err := s.registry.Delete(c.Param("id"))
	if errors.Is(err, registry.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "speaker not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (s *Server) handleMergeSpeakers(c *gin.Context) {
	var req struct {
		From string `json:"from" binding:"required"`
		To   string `json:"to" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from and to are required"})
		return
	}
	err := s.registry.Merge(req.From, req.To)
	switch {
	case errors.Is(err, registry.ErrSelfMerge):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, registry.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "merged"})
	}
}

func (s *Server) handleSpeakerClip(c *gin.Context) {
	sp, err := s.registry.Get(c.Param("id"))
	if errors.Is(err, registry.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "speaker not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if sp.ClipPath == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no clip stored for this speaker"})
		return
	}
	if _, err := os.Stat(sp.ClipPath); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "clip file is missing"})
		return
	}
	c.Header("Content-Type", "audio/mpeg")
	c.File(sp.ClipPath)
}

func (s *Server) handleSearch(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
		return
	}
	hits, err := s.registry.SearchTranscripts(query, queryInt(c, "limit", 50))
	if errors.Is(err, registry.ErrSearchDisabled) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": hits})
}

func (s *Server) extensionAllowed(ext string) bool {
	ext = strings.TrimPrefix(ext, ".")
	for _, allowed := range s.cfg.Audio.AllowedExtensions {
		if strings.EqualFold(allowed, ext) {
			return true
		}
	}
	return false
}

func queryInt(c *gin.Context, key string, fallback int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
