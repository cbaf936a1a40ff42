package security

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pixelkit/bgremover/pkg/errors"
)

const (
	// DefaultMaxFileSize is the largest image accepted for ingestion (5 MiB).
	DefaultMaxFileSize int64 = 5 * 1024 * 1024

	MinBorderThickness = 1
	MaxBorderThickness = 20
)

var hexColorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// Border is the struct form of a border request checked by ValidateBorder.
type Border struct {
	Color     string `validate:"required,hexrgb"`
	Thickness int    `validate:"min=1,max=20"`
}

// Validator checks files and border settings before anything reaches the network
type Validator struct {
	maxFileSize int64
	structs     *validator.Validate
}

// NewValidator creates a new ingestion validator. A non-positive limit falls back to DefaultMaxFileSize.
func NewValidator(maxFileSize int64) *Validator {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}

	v := validator.New()
	// The tag name is a constant so registration cannot fail.
	_ = v.RegisterValidation("hexrgb", func(fl validator.FieldLevel) bool {
		return IsHexColor(fl.Field().String())
	})

	slog.Debug("security_validator_init", "max_file_size_mb", maxFileSize/1024/1024)

	return &Validator{
		maxFileSize: maxFileSize,
		structs:     v,
	}
}

// MaxFileSize returns the configured ingestion limit in bytes
func (v *Validator) MaxFileSize() int64 {
	return v.maxFileSize
}

// ValidateMediaType checks that the declared media type is an image/* type
func (v *Validator) ValidateMediaType(mediaType string) error {
	if !IsImageMediaType(mediaType) {
		slog.Warn("security_media_type_rejected", "media_type", mediaType)
		return errors.ErrInvalidFileType
	}
	return nil
}

// ValidateFileSize checks if a file exceeds max file size
func (v *Validator) ValidateFileSize(size int64) error {
	if size > v.maxFileSize {
		slog.Warn("security_file_size_exceeded",
			"file_size", size,
			"max_file_size", v.maxFileSize)
		return errors.FileTooLarge(v.maxFileSize)
	}
	return nil
}

// ValidateFile runs the media type check first, then the size check.
func (v *Validator) ValidateFile(mediaType string, size int64) error {
	if err := v.ValidateMediaType(mediaType); err != nil {
		return err
	}
	return v.ValidateFileSize(size)
}

// ValidateBorder checks a color/thickness pair as a whole
func (v *Validator) ValidateBorder(b Border) error {
	if err := v.structs.Struct(b); err != nil {
		return errors.Wrap(err, "invalid border")
	}
	return nil
}

// IsImageMediaType reports whether mediaType has the image/ prefix, ignoring
// case and any parameters.
func IsImageMediaType(mediaType string) bool {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	return strings.HasPrefix(mt, "image/") && len(mt) > len("image/")
}

// IsHexColor reports whether s is a #RRGGBB color.
func IsHexColor(s string) bool {
	return hexColorPattern.MatchString(s)
}

// IsBorderThickness reports whether n is within the accepted thickness range.
func IsBorderThickness(n int) bool {
	return n >= MinBorderThickness && n <= MaxBorderThickness
}
