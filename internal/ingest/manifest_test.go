package ingest

import (
	"strings"
	"testing"
)

const sampleManifest = `{"metadata_filename":"p1.json","name":"Rue Sainte-Catherine","description":" tram tracks ","caption_text":"Winter scene","image_filename":"p1.jpg","resolved_image_filename":"p1_large.jpg","attributes_map":{"Date":"1946"}}

{"metadata_filename":"","name":"no id"}
{"metadata_filename":"p2.json","name":"Port de Montreal","external_url":"https://archive.example/p2.jpg","latitude":45.5,"longitude":-73.55}
{"metadata_filename":"p3.json","name":"Marche Bonsecours","image_filename":"p3.jpg"}
`

func TestReadManifestSkipsBlankAndMissingID(t *testing.T) {
	records, err := readManifest(strings.NewReader(sampleManifest), 0, 0)
	if err != nil {
		t.Fatalf("readManifest failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[0].ID() != "p1.json" || records[2].ID() != "p3.json" {
		t.Errorf("unexpected record order: %q, %q", records[0].ID(), records[2].ID())
	}
}

func TestReadManifestOffsetLimit(t *testing.T) {
	records, err := readManifest(strings.NewReader(sampleManifest), 1, 1)
	if err != nil {
		t.Fatalf("readManifest failed: %v", err)
	}
	if len(records) != 1 || records[0].ID() != "p2.json" {
		t.Fatalf("expected only p2.json, got %+v", records)
	}

	records, err = readManifest(strings.NewReader(sampleManifest), 10, 0)
	if err != nil {
		t.Fatalf("readManifest failed: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("offset past end should yield no records, got %d", len(records))
	}
}

func TestReadManifestRejectsMalformedLine(t *testing.T) {
	_, err := readManifest(strings.NewReader("{not json}\n"), 0, 0)
	if err == nil {
		t.Fatal("expected error for malformed line")
	}
}

func TestManifestRecordImageKeyPrefersResolved(t *testing.T) {
	rec := ManifestRecord{ImageFilename: "raw.jpg", ResolvedImageFilename: "large.jpg"}
	if got := rec.ImageKey(); got != "large.jpg" {
		t.Errorf("ImageKey() = %q, want large.jpg", got)
	}
	rec.ResolvedImageFilename = ""
	if got := rec.ImageKey(); got != "raw.jpg" {
		t.Errorf("ImageKey() = %q, want raw.jpg", got)
	}
}

func TestManifestRecordPhoto(t *testing.T) {
	records, err := readManifest(strings.NewReader(sampleManifest), 0, 1)
	if err != nil {
		t.Fatalf("readManifest failed: %v", err)
	}
	photo := records[0].Photo()

	if photo.ID != "p1.json" {
		t.Errorf("ID = %q", photo.ID)
	}
	if photo.Description != "tram tracks" {
		t.Errorf("Description not trimmed: %q", photo.Description)
	}
	if photo.ImageLocation != "p1_large.jpg" {
		t.Errorf("ImageLocation = %q", photo.ImageLocation)
	}
	if photo.DateValue != "1946" {
		t.Errorf("DateValue = %q", photo.DateValue)
	}
	if photo.Latitude != nil {
		t.Errorf("Latitude should be nil, got %v", *photo.Latitude)
	}
}
