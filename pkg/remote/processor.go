// Package remote talks to the image processing service that removes
// backgrounds and composites borders. Nothing in this package touches pixels;
// it only packages bytes for the service and hands back what it returns.
package remote

import "context"

// Endpoint paths exposed by the processing service.
const (
	RemoveBackgroundPath = "/remove-bg"
	AddBorderPath        = "/add-border"
)

// Multipart field names understood by the processing service.
const (
	FieldImage           = "image"
	FieldBorderThickness = "border_thickness"
	FieldBorderColor     = "border_color"
)

// Upload is the image part of a multipart request.
type Upload struct {
	Filename  string
	MediaType string
	Data      []byte
}

// Processor performs the two remote operations a session relies on.
// Each call is a single attempt; implementations never retry.
type Processor interface {
	// RemoveBackground returns the image with its background made transparent.
	RemoveBackground(ctx context.Context, img Upload) ([]byte, error)

	// AddBorder returns img with a border of the given thickness (1-20) and
	// #RRGGBB color composited around its foreground.
	AddBorder(ctx context.Context, img Upload, thickness int, color string) ([]byte, error)
}
