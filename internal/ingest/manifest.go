// Package ingest builds the metadata store and vector indexes from an
// archival export manifest. It runs offline; the API never mutates either.
package ingest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mtlarchive/fonds/internal/domain"
)

// ManifestRecord is one NDJSON line of the archival export manifest.
type ManifestRecord struct {
	MetadataFilename      string            `json:"metadata_filename"`
	Name                  string            `json:"name"`
	Description           string            `json:"description"`
	CaptionText           string            `json:"caption_text"`
	ExternalURL           string            `json:"external_url"`
	ImageFilename         string            `json:"image_filename"`
	ResolvedImageFilename string            `json:"resolved_image_filename"`
	Latitude              *float64          `json:"latitude"`
	Longitude             *float64          `json:"longitude"`
	Attributes            map[string]string `json:"attributes_map"`
}

// ID returns the record's stable identifier across the store and both
// indexes.
func (m *ManifestRecord) ID() string { return m.MetadataFilename }

// ImageKey returns the object key of the best available image rendition.
func (m *ManifestRecord) ImageKey() string {
	if m.ResolvedImageFilename != "" {
		return m.ResolvedImageFilename
	}
	return m.ImageFilename
}

// Photo converts a manifest record to the domain shape.
func (m *ManifestRecord) Photo() domain.PhotoRecord {
	return domain.PhotoRecord{
		ID:            m.ID(),
		Name:          strings.TrimSpace(m.Name),
		Description:   strings.TrimSpace(m.Description),
		CaptionText:   strings.TrimSpace(m.CaptionText),
		ImageLocation: m.ImageKey(),
		ExternalURL:   m.ExternalURL,
		DateValue:     m.Attributes["Date"],
		Latitude:      m.Latitude,
		Longitude:     m.Longitude,
	}
}

// ReadManifest loads manifest records from an NDJSON file, applying offset
// and limit (zero limit means all). Records without an id are skipped.
func ReadManifest(path string, offset, limit int) ([]ManifestRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()
	return readManifest(f, offset, limit)
}

func readManifest(r io.Reader, offset, limit int) ([]ManifestRecord, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var records []ManifestRecord
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var rec ManifestRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("manifest line %d: %w", line, err)
		}
		if rec.ID() == "" {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	if offset > len(records) {
		offset = len(records)
	}
	records = records[offset:]
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}
