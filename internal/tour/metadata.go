package tour

import (
	"encoding/json"
	"time"
)

// Metadata is the sidecar written next to every published tour.
type Metadata struct {
	TourName       string    `json:"tourName"`
	DisplayName    string    `json:"displayName"`
	SourceKey      string    `json:"sourceKey"`
	FilesExtracted int       `json:"filesExtracted"`
	TotalSize      int64     `json:"totalSize"`
	ExtractedAt    time.Time `json:"extractedAt"`
	Structure      string    `json:"structure"`
	PublicPath     string    `json:"publicPath"`
}

// Encode renders m as indented JSON.
func (m Metadata) Encode() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// DecodeMetadata parses a sidecar.
func DecodeMetadata(data []byte) (Metadata, error) {
	var m Metadata
	err := json.Unmarshal(data, &m)
	return m, err
}
