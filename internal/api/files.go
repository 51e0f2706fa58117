package api

import (
	"bytes"
	"io"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"chatbff/internal/auth"
	"chatbff/internal/service/ai"
)

const maxUploadBytes = 10 << 20 // 10 MB

var allowedContentTypes = []string{
	"image/jpeg",
	"image/png",
	"image/heic",
	"image/heif",
	"application/pdf",
	"text/plain",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"text/csv",
	"application/json",
}

func isAllowedContentType(ct string) bool {
	for _, allowed := range allowedContentTypes {
		if ct == allowed {
			return true
		}
	}
	return false
}

const unsupportedTypeMessage = "File type should be an image (JPEG, PNG, HEIC) or document (PDF, TXT, DOC, DOCX, XLS, XLSX, CSV, JSON)"

// uploadContentType prefers the declared part type and sniffs the content
// when the client sent none.
func uploadContentType(declared string, head []byte) string {
	if declared != "" && declared != "application/octet-stream" {
		if mediaType, _, err := mime.ParseMediaType(declared); err == nil {
			return mediaType
		}
	}
	mediaType, _, _ := mime.ParseMediaType(http.DetectContentType(head))
	return mediaType
}

// filesUpload accepts cookie sessions and mobile requests carrying the
// proxied user header.
func (h *Handler) filesUpload(c *gin.Context) {
	principal, ok := principalOf(c)
	if (!ok || principal.ViaBearer) && c.GetHeader(auth.ProxiedUserIDHeader) == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+(1<<20))
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}
	if file.Size > h.maxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File size should be less than 10MB"})
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to process request"})
		return
	}
	data, err := io.ReadAll(f)
	_ = f.Close()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process request"})
		return
	}
	contentType := uploadContentType(file.Header.Get("Content-Type"), data[:min(len(data), 512)])
	if !isAllowedContentType(contentType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": unsupportedTypeMessage})
		return
	}

	stored, err := h.blobs.Put(c.Request.Context(), filepath.Base(file.Filename), data, contentType)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Upload failed"})
		return
	}
	c.JSON(http.StatusOK, stored)
}

func (h *Handler) speechToText(c *gin.Context) {
	if _, ok := principalOf(c); !ok {
		c.String(http.StatusUnauthorized, "Unauthorized")
		return
	}
	if h.transcriber == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "speech to text is not configured"})
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No audio file provided"})
		return
	}
	if file.Size < ai.MinAudioBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Audio file is too small or empty. Please ensure the recording captured audio properly."})
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read audio file"})
		return
	}
	defer f.Close()
	audio, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read audio file"})
		return
	}

	text, err := ai.Transcribe(c.Request.Context(), h.transcriber, bytes.NewReader(audio))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"text": text})
}
