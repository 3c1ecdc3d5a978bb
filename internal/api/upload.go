package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/dmstream/internal/blob"
	"github.com/lalith-99/dmstream/internal/middleware"
	"go.uber.org/zap"
)

// BlobStore persists uploaded media and returns the URL clients put in a
// message's media reference.
type BlobStore interface {
	Put(ctx context.Context, originalName string, r io.Reader) (string, error)
}

// UploadHandler handles POST /v1/upload.
type UploadHandler struct {
	store    BlobStore
	maxBytes int64
	logger   *zap.Logger
}

func NewUploadHandler(store BlobStore, maxBytes int64, logger *zap.Logger) *UploadHandler {
	return &UploadHandler{store: store, maxBytes: maxBytes, logger: logger}
}

type uploadResponse struct {
	Success bool   `json:"success"`
	FileURL string `json:"fileUrl,omitempty"`
	Msg     string `json:"msg"`
}

// Upload stores the multipart "file" field.
func (h *UploadHandler) Upload(c *gin.Context) {
	// Multipart framing adds a little on top of the file itself.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+64<<10)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, uploadResponse{Msg: "File too large."})
			return
		}
		c.JSON(http.StatusBadRequest, uploadResponse{Msg: "No file uploaded."})
		return
	}
	if fh.Size > h.maxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, uploadResponse{Msg: "File too large."})
		return
	}

	f, err := fh.Open()
	if err != nil {
		h.logger.Error("failed to open upload", zap.Error(err))
		c.JSON(http.StatusInternalServerError, uploadResponse{Msg: "Upload failed."})
		return
	}
	defer f.Close()

	url, err := h.store.Put(c.Request.Context(), fh.Filename, f)
	if err != nil {
		if errors.Is(err, blob.ErrTooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, uploadResponse{Msg: "File too large."})
			return
		}
		h.logger.Error("failed to store upload", zap.Error(err))
		c.JSON(http.StatusInternalServerError, uploadResponse{Msg: "Upload failed."})
		return
	}

	h.logger.Info("file uploaded",
		zap.String("identity", middleware.GetIdentity(c)),
		zap.String("url", url),
		zap.Int64("size", fh.Size))
	c.JSON(http.StatusOK, uploadResponse{Success: true, FileURL: url, Msg: "File uploaded successfully!"})
}
