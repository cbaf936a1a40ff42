package remote

import (
	"bytes"
	"context"
	"log/slog"
	"time"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/pixelkit/bgremover/pkg/errors"
)

// DefaultSimulateDelay matches the pause the offline mode has always used.
const DefaultSimulateDelay = 2 * time.Second

// Simulator stands in for the processing service when none is reachable.
// It waits a fixed delay and hands the image back as PNG; it does not
// remove anything or draw a border.
type Simulator struct {
	delay time.Duration
}

// NewSimulator creates a simulator that answers after delay
func NewSimulator(delay time.Duration) *Simulator {
	slog.Warn("remote_simulator_enabled", "delay", delay)
	return &Simulator{delay: delay}
}

// RemoveBackground returns img re-encoded as PNG
func (s *Simulator) RemoveBackground(ctx context.Context, img Upload) ([]byte, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return toPNG(img.Data)
}

// AddBorder returns img re-encoded as PNG; the border settings are only logged
func (s *Simulator) AddBorder(ctx context.Context, img Upload, thickness int, color string) ([]byte, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	slog.Info("remote_simulator_border", "thickness", thickness, "color", color)
	return toPNG(img.Data)
}

func (s *Simulator) wait(ctx context.Context) error {
	if s.delay <= 0 {
		return nil
	}
	t := time.NewTimer(s.delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func toPNG(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode image")
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, errors.Wrap(err, "failed to encode png")
	}
	return buf.Bytes(), nil
}
