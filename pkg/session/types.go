package session

import (
	"encoding/json"
	"fmt"
)

// DownloadFilename is the name every download is saved under, whatever the
// actual encoding of the processed bytes.
const DownloadFilename = "processed-image.png"

// Border defaults
const (
	DefaultBorderColor     = "#000000"
	DefaultBorderThickness = 5
)

// Status is the coarse state of a session's remote work
type Status int

const (
	StatusIdle Status = iota
	StatusProcessing
	StatusReady
	StatusError
)

var statusNames = map[Status]string{
	StatusIdle:       "idle",
	StatusProcessing: "processing",
	StatusReady:      "ready",
	StatusError:      "error",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// MarshalJSON encodes the status by name
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// SourceImage is the file as the user supplied it
type SourceImage struct {
	Filename  string
	MediaType string
	Data      []byte
	Ref       string
}

// ProcessedImage holds the bytes most recently returned by the service
type ProcessedImage struct {
	MediaType string
	Data      []byte
	Ref       string
}

// BorderSpec is the user's border choice, independent of any image
type BorderSpec struct {
	Color     string `json:"color"`
	Thickness int    `json:"thickness"`
}

// DefaultBorder returns black, 5px
func DefaultBorder() BorderSpec {
	return BorderSpec{Color: DefaultBorderColor, Thickness: DefaultBorderThickness}
}

// Snapshot is a read-only view of a session for rendering
type Snapshot struct {
	ID            string     `json:"id"`
	Status        Status     `json:"status"`
	SourceName    string     `json:"source_name,omitempty"`
	SourceType    string     `json:"source_type,omitempty"`
	SourceSize    int        `json:"source_size,omitempty"`
	SourceRef     string     `json:"source_ref,omitempty"`
	ProcessedRef  string     `json:"processed_ref,omitempty"`
	ProcessedSize int        `json:"processed_size,omitempty"`
	Border        BorderSpec `json:"border"`
}

// HasProcessed reports whether a border can be applied or a download made
func (s Snapshot) HasProcessed() bool {
	return s.ProcessedRef != ""
}
