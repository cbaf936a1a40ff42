// Package session implements the upload workflow: ingest an image, have the
// processing service remove its background, optionally apply a border, and
// save the result.
//
// A Session owns all of its state. Callers only see it through the operations
// below and through Snapshot, so the rule that no border can be applied
// without a processed image is enforced in one place.
//
// Every mutating operation takes a request token. A remote response that comes
// back after a newer operation started is discarded instead of overwriting
// the newer state.
package session

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/pixelkit/bgremover/pkg/errors"
	"github.com/pixelkit/bgremover/pkg/remote"
	"github.com/pixelkit/bgremover/pkg/security"
)

// ErrSuperseded is returned to the caller of an operation whose response
// arrived after a newer operation had started. The response is dropped.
var ErrSuperseded = stderrors.New("operation superseded by a newer request")

// Saver persists downloaded bytes and reports where they went
type Saver interface {
	Save(ctx context.Context, name, mediaType string, data []byte) (string, error)
}

// Session is one user's upload workflow
type Session struct {
	id        string
	proc      remote.Processor
	validator *security.Validator
	notifier  Notifier
	refs      *Registry

	mu        sync.Mutex
	token     uint64
	status    Status
	source    *SourceImage
	processed *ProcessedImage
	border    BorderSpec
}

// New creates an idle session. A nil notifier logs notices instead.
func New(proc remote.Processor, validator *security.Validator, notifier Notifier) *Session {
	if validator == nil {
		validator = security.NewValidator(security.DefaultMaxFileSize)
	}
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &Session{
		id:        uuid.NewString(),
		proc:      proc,
		validator: validator,
		notifier:  notifier,
		refs:      NewRegistry(),
		status:    StatusIdle,
		border:    DefaultBorder(),
	}
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// Status returns the current status
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Border returns the current border settings
func (s *Session) Border() BorderSpec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.border
}

// Snapshot returns a copy of the observable state
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{ID: s.id, Status: s.status, Border: s.border}
	if s.source != nil {
		snap.SourceName = s.source.Filename
		snap.SourceType = s.source.MediaType
		snap.SourceSize = len(s.source.Data)
		snap.SourceRef = s.source.Ref
	}
	if s.processed != nil {
		snap.ProcessedRef = s.processed.Ref
		snap.ProcessedSize = len(s.processed.Data)
	}
	return snap
}

// Lookup resolves a reference issued by this session
func (s *Session) Lookup(ref string) (Blob, bool) {
	return s.refs.Get(ref)
}

// Ingest validates f, makes it the session's source image and runs background
// removal on it. A rejected file changes nothing and never reaches the network.
func (s *Session) Ingest(ctx context.Context, f File) error {
	if err := s.validator.ValidateFile(f.MediaType(), f.Size()); err != nil {
		slog.Warn("session_ingest_rejected",
			"session_id", s.id,
			"filename", f.Name(),
			"media_type", f.MediaType(),
			"size", f.Size(),
			"error", err)
		s.notifier.Notify(err)
		return err
	}

	data, err := readFile(f, s.validator.MaxFileSize())
	if err != nil {
		slog.Error("session_ingest_read_failed", "session_id", s.id, "filename", f.Name(), "error", err)
		s.notifier.Notify(err)
		return err
	}

	s.mu.Lock()
	s.token++
	token := s.token

	s.releaseLocked()
	src := &SourceImage{
		Filename:  f.Name(),
		MediaType: f.MediaType(),
		Data:      data,
	}
	src.Ref = s.refs.Create(data, src.MediaType)
	s.source = src
	s.status = StatusProcessing
	s.mu.Unlock()

	slog.Info("session_ingested",
		"session_id", s.id,
		"filename", src.Filename,
		"media_type", src.MediaType,
		"size", len(data),
		"token", token)

	return s.removeBackground(ctx, token, src)
}

// RemoveBackground runs background removal again on the current source image,
// discarding any processed image. It is a no-op without a source image.
func (s *Session) RemoveBackground(ctx context.Context) error {
	s.mu.Lock()
	src := s.source
	if src == nil {
		s.mu.Unlock()
		return nil
	}
	s.token++
	token := s.token
	s.releaseProcessedLocked()
	s.status = StatusProcessing
	s.mu.Unlock()

	return s.removeBackground(ctx, token, src)
}

func (s *Session) removeBackground(ctx context.Context, token uint64, src *SourceImage) error {
	data, err := s.proc.RemoveBackground(ctx, remote.Upload{
		Filename:  src.Filename,
		MediaType: src.MediaType,
		Data:      src.Data,
	})

	s.mu.Lock()
	if token != s.token {
		s.mu.Unlock()
		slog.Warn("session_response_stale", "session_id", s.id, "op", "remove_background", "token", token)
		return ErrSuperseded
	}

	if err != nil {
		s.status = StatusError
		s.mu.Unlock()
		slog.Error("session_remove_background_failed", "session_id", s.id, "filename", src.Filename, "error", err)
		err = errors.Mark(err, errors.ErrRemoteRemoval)
		s.notifier.Notify(err)
		return err
	}

	ref := s.setProcessedLocked(data)
	s.status = StatusReady
	s.mu.Unlock()

	slog.Info("session_background_removed", "session_id", s.id, "ref", ref, "size", len(data))
	return nil
}

// ApplyBorder sends the current processed image with the current border to the
// service and replaces the processed image with the result. Borders compose:
// applying twice borders the already-bordered image. Without a processed image
// it does nothing.
func (s *Session) ApplyBorder(ctx context.Context) error {
	s.mu.Lock()
	if s.processed == nil {
		s.mu.Unlock()
		slog.Debug("session_apply_border_skipped", "session_id", s.id, "reason", "no_processed_image")
		return nil
	}
	s.token++
	token := s.token
	prev := s.processed
	border := s.border
	filename := ""
	if s.source != nil {
		filename = s.source.Filename
	}
	s.status = StatusProcessing
	s.mu.Unlock()

	slog.Info("session_apply_border", "session_id", s.id, "color", border.Color, "thickness", border.Thickness, "token", token)

	data, err := s.proc.AddBorder(ctx, remote.Upload{
		Filename:  filename,
		MediaType: prev.MediaType,
		Data:      prev.Data,
	}, border.Thickness, border.Color)

	s.mu.Lock()
	if token != s.token {
		s.mu.Unlock()
		slog.Warn("session_response_stale", "session_id", s.id, "op", "apply_border", "token", token)
		return ErrSuperseded
	}

	if err != nil {
		// The previous processed image is untouched.
		s.status = StatusReady
		s.mu.Unlock()
		slog.Error("session_apply_border_failed", "session_id", s.id, "error", err)
		err = errors.Mark(err, errors.ErrRemoteBorder)
		s.notifier.Notify(err)
		return err
	}

	ref := s.setProcessedLocked(data)
	s.status = StatusReady
	s.mu.Unlock()

	slog.Info("session_border_applied", "session_id", s.id, "ref", ref, "size", len(data))
	return nil
}

// SetBorderColor updates the border color. Values from a color picker are
// taken as they are; typed values must be #RRGGBB or they are ignored.
// It reports whether the value was accepted.
func (s *Session) SetBorderColor(value string, fromPicker bool) bool {
	if !fromPicker && !security.IsHexColor(value) {
		return false
	}
	s.mu.Lock()
	s.border.Color = value
	s.mu.Unlock()
	return true
}

// SetBorderThickness updates the thickness if it is within 1-20
func (s *Session) SetBorderThickness(n int) bool {
	if !security.IsBorderThickness(n) {
		return false
	}
	s.mu.Lock()
	s.border.Thickness = n
	s.mu.Unlock()
	return true
}

// Download saves the processed bytes as processed-image.png and returns the
// saver's location for them. Without a processed image it does nothing and
// returns an empty location.
func (s *Session) Download(ctx context.Context, saver Saver) (string, error) {
	s.mu.Lock()
	p := s.processed
	s.mu.Unlock()

	if p == nil {
		return "", nil
	}

	location, err := saver.Save(ctx, DownloadFilename, p.MediaType, p.Data)
	if err != nil {
		slog.Error("session_download_failed", "session_id", s.id, "error", err)
		return "", errors.Wrap(err, "download failed")
	}

	slog.Info("session_downloaded", "session_id", s.id, "location", location, "size", len(p.Data))
	return location, nil
}

// Close releases every reference the session handed out
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token++
	s.source = nil
	s.processed = nil
	s.status = StatusIdle
	s.refs.Clear()
}

func (s *Session) setProcessedLocked(data []byte) string {
	s.releaseProcessedLocked()
	mediaType := http.DetectContentType(data)
	s.processed = &ProcessedImage{
		MediaType: mediaType,
		Data:      data,
		Ref:       s.refs.Create(data, mediaType),
	}
	return s.processed.Ref
}

func (s *Session) releaseProcessedLocked() {
	if s.processed != nil {
		s.refs.Release(s.processed.Ref)
		s.processed = nil
	}
}

func (s *Session) releaseLocked() {
	s.releaseProcessedLocked()
	if s.source != nil {
		s.refs.Release(s.source.Ref)
		s.source = nil
	}
}

// readFile reads at most limit bytes; a file that turns out larger than it
// declared is rejected as too large.
func readFile(f File, limit int64) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, errors.Wrap(err, "failed to open file")
	}
	defer rc.Close()

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read file")
	}
	if n > limit {
		return nil, errors.FileTooLarge(limit)
	}
	return buf.Bytes(), nil
}
