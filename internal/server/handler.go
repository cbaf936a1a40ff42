package server

import (
	"context"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pixelkit/bgremover/pkg/errors"
	"github.com/pixelkit/bgremover/pkg/remote"
	"github.com/pixelkit/bgremover/pkg/session"
)

const (
	// SessionCookie carries the visitor's session id
	SessionCookie = "bgr_session"

	sessionKey = "session"

	// multipart framing allowance on top of the image size limit
	uploadOverhead = 1 << 20
)

// Handler serves the upload workflow over HTTP
type Handler struct {
	sessions    *store
	maxFileSize int64
}

// NewHandler creates a handler that builds sessions with factory and drops
// them after sessionTTL without a request
func NewHandler(factory Factory, maxFileSize int64, sessionTTL time.Duration) *Handler {
	return &Handler{
		sessions:    newStore(factory, sessionTTL),
		maxFileSize: maxFileSize,
	}
}

// BorderRequest updates border settings. Omitted fields stay unchanged.
type BorderRequest struct {
	Color     *string `json:"color"`
	Thickness *int    `json:"thickness"`
	Picker    bool    `json:"picker"`
}

// BorderResponse reports which fields were accepted
type BorderResponse struct {
	ColorAccepted     bool             `json:"color_accepted"`
	ThicknessAccepted bool             `json:"thickness_accepted"`
	Session           session.Snapshot `json:"session"`
}

// WithSession attaches the visitor's session, creating it when the cookie is missing or stale
func (h *Handler) WithSession(c *gin.Context) {
	id, _ := c.Cookie(SessionCookie)
	sess, created := h.sessions.get(id)
	if created {
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(SessionCookie, sess.ID(), 0, "/", "", false, true)
		slog.Info("http_session_created", "session_id", sess.ID(), "sessions", h.sessions.len())
	}
	c.Set(sessionKey, sess)
	c.Next()
}

// LookupSession attaches the visitor's session if it exists. Read-only routes
// use it so that cookieless requests never allocate a session.
func (h *Handler) LookupSession(c *gin.Context) {
	id, err := c.Cookie(SessionCookie)
	if err == nil {
		if sess, ok := h.sessions.lookup(id); ok {
			c.Set(sessionKey, sess)
		}
	}
	c.Next()
}

func current(c *gin.Context) *session.Session {
	return c.MustGet(sessionKey).(*session.Session)
}

// existing returns the attached session or nil
func existing(c *gin.Context) *session.Session {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil
	}
	return v.(*session.Session)
}

// UploadImage ingests the multipart "image" field
func (h *Handler) UploadImage(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxFileSize+uploadOverhead)

	header, err := c.FormFile(remote.FieldImage)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(c, errors.FileTooLarge(h.maxFileSize))
			return
		}
		slog.Warn("http_upload_missing_file", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "No image uploaded"})
		return
	}

	sess := current(c)
	if err := sess.Ingest(c.Request.Context(), formFile{header}); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, sess.Snapshot())
}

// RemoveBackground reruns background removal on the current source image
func (h *Handler) RemoveBackground(c *gin.Context) {
	sess := current(c)
	if err := sess.RemoveBackground(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess.Snapshot())
}

// UpdateBorder changes border color and thickness
func (h *Handler) UpdateBorder(c *gin.Context) {
	var req BorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid border request"})
		return
	}

	sess := current(c)
	var resp BorderResponse
	if req.Color != nil {
		resp.ColorAccepted = sess.SetBorderColor(*req.Color, req.Picker)
	}
	if req.Thickness != nil {
		resp.ThicknessAccepted = sess.SetBorderThickness(*req.Thickness)
	}
	resp.Session = sess.Snapshot()

	c.JSON(http.StatusOK, resp)
}

// ApplyBorder applies the current border to the processed image
func (h *Handler) ApplyBorder(c *gin.Context) {
	sess := current(c)
	if err := sess.ApplyBorder(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess.Snapshot())
}

// GetSession returns the session snapshot, or an idle one for a visitor
// without a session
func (h *Handler) GetSession(c *gin.Context) {
	sess := existing(c)
	if sess == nil {
		c.JSON(http.StatusOK, session.Snapshot{Status: session.StatusIdle, Border: session.DefaultBorder()})
		return
	}
	c.JSON(http.StatusOK, sess.Snapshot())
}

// DeleteSession drops the session and every reference it issued
func (h *Handler) DeleteSession(c *gin.Context) {
	if sess := existing(c); sess != nil {
		h.sessions.remove(sess.ID())
	}
	c.SetCookie(SessionCookie, "", -1, "/", "", false, true)
	c.Status(http.StatusNoContent)
}

// GetBlob serves the bytes behind a live reference
func (h *Handler) GetBlob(c *gin.Context) {
	sess := existing(c)
	if sess == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Image not found"})
		return
	}
	blob, ok := sess.Lookup(session.RefPrefix + c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Image not found"})
		return
	}
	c.Data(http.StatusOK, blob.MediaType, blob.Data)
}

// Download sends the processed image as an attachment
func (h *Handler) Download(c *gin.Context) {
	sess := existing(c)
	if sess == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No processed image"})
		return
	}
	location, err := sess.Download(c.Request.Context(), responseSaver{c})
	if err != nil {
		slog.Error("http_download_failed", "error", err)
		return
	}
	if location == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "No processed image"})
	}
}

// HealthCheck reports liveness
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "OK", "sessions": h.sessions.len()})
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.IsUserError(err):
		status = http.StatusBadRequest
	case errors.Is(err, session.ErrSuperseded):
		status = http.StatusConflict
	case errors.Is(err, errors.ErrRemoteRemoval), errors.Is(err, errors.ErrRemoteBorder):
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"error": session.Notice(err)})
}

// formFile adapts an uploaded part to session.File
type formFile struct {
	header *multipart.FileHeader
}

func (f formFile) Name() string      { return f.header.Filename }
func (f formFile) MediaType() string { return f.header.Header.Get("Content-Type") }
func (f formFile) Size() int64       { return f.header.Size }

func (f formFile) Open() (io.ReadCloser, error) {
	return f.header.Open()
}

// responseSaver streams a download straight into the HTTP response
type responseSaver struct {
	c *gin.Context
}

func (s responseSaver) Save(ctx context.Context, name, mediaType string, data []byte) (string, error) {
	s.c.Header("Content-Disposition", `attachment; filename="`+strings.ReplaceAll(name, `"`, "")+`"`)
	s.c.Header("Content-Length", strconv.Itoa(len(data)))
	s.c.Data(http.StatusOK, mediaType, data)
	return s.c.Request.URL.Path, nil
}
