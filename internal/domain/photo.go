package domain

import "strings"

// PhotoRecord is one archival photograph's metadata. Records are created by
// the offline ingestion pass and are immutable at query time; the id is the
// primary key in the metadata store and in both vector indexes.
type PhotoRecord struct {
	ID            string   `json:"id"`
	Name          string   `json:"name,omitempty"`
	Description   string   `json:"description,omitempty"`
	CaptionText   string   `json:"captionText,omitempty"`
	ImageLocation string   `json:"imageLocation,omitempty"`
	ExternalURL   string   `json:"externalUrl,omitempty"`
	DateValue     string   `json:"date,omitempty"`
	Latitude      *float64 `json:"latitude,omitempty"`
	Longitude     *float64 `json:"longitude,omitempty"`
}

// EmbeddingText assembles the textual content fed to the text embedding:
// name, description and caption joined, empty fields skipped.
func (p *PhotoRecord) EmbeddingText() string {
	parts := make([]string, 0, 3)
	for _, s := range []string{p.Name, p.Description, p.CaptionText} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ". ")
}
