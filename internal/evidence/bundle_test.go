package evidence

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func checksumOf(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

var (
	meterLog   = "meter readings 2026-03-01 00:00..23:59"
	labReport  = "lab certificate: purity 99.97%"
	meterSum   = checksumOf(meterLog)
	labSum     = checksumOf(labReport)
	baseBundle = Bundle{
		Metadata: json.RawMessage(`{"plantId":"GJ-KUTCH-07","batchId":"2026-03-01-A","kg":500}`),
		Documents: []Document{
			{Name: "meter.csv", MediaType: "text/csv", Checksum: meterSum},
			{Name: "lab.pdf", MediaType: "application/pdf", Checksum: labSum},
		},
	}
)

func TestFingerprintIsStableAcrossRepresentations(t *testing.T) {
	want, err := Fingerprint(baseBundle)
	if err != nil {
		t.Fatalf("Fingerprint() error = %v", err)
	}
	if len(want) != 64 {
		t.Fatalf("expected a hex SHA-256 fingerprint, got %q", want)
	}

	tests := []struct {
		name   string
		bundle Bundle
	}{
		{
			name: "documents reordered",
			bundle: Bundle{
				Metadata:  baseBundle.Metadata,
				Documents: []Document{baseBundle.Documents[1], baseBundle.Documents[0]},
			},
		},
		{
			name: "metadata keys reordered with whitespace",
			bundle: Bundle{
				Metadata:  json.RawMessage(`{ "kg": 500, "batchId": "2026-03-01-A", "plantId": "GJ-KUTCH-07" }`),
				Documents: baseBundle.Documents,
			},
		},
		{
			name: "duplicate document entry",
			bundle: Bundle{
				Metadata:  baseBundle.Metadata,
				Documents: append([]Document{{Name: "meter-copy.csv", Checksum: meterSum}}, baseBundle.Documents...),
			},
		},
		{
			name: "upper case checksum and renamed document",
			bundle: Bundle{
				Metadata: baseBundle.Metadata,
				Documents: []Document{
					{Name: "readings.csv", Checksum: strings.ToUpper(meterSum)},
					{Name: "lab.pdf", Checksum: labSum},
				},
			},
		},
		{
			name: "content supplied",
			bundle: Bundle{
				Metadata: baseBundle.Metadata,
				Documents: []Document{
					{Name: "meter.csv", Checksum: meterSum, Content: base64.StdEncoding.EncodeToString([]byte(meterLog)), Size: int64(len(meterLog))},
					{Name: "lab.pdf", Checksum: labSum},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Fingerprint(tt.bundle)
			if err != nil {
				t.Fatalf("Fingerprint() error = %v", err)
			}
			if got != want {
				t.Errorf("fingerprint changed: got %s, want %s", got, want)
			}
		})
	}
}

func TestFingerprintChangesWithContent(t *testing.T) {
	base, _ := Fingerprint(baseBundle)

	tests := []struct {
		name   string
		bundle Bundle
	}{
		{"different metadata", Bundle{
			Metadata:  json.RawMessage(`{"plantId":"GJ-KUTCH-07","batchId":"2026-03-01-B","kg":500}`),
			Documents: baseBundle.Documents,
		}},
		{"document removed", Bundle{
			Metadata:  baseBundle.Metadata,
			Documents: baseBundle.Documents[:1],
		}},
		{"different document", Bundle{
			Metadata:  baseBundle.Metadata,
			Documents: []Document{baseBundle.Documents[0], {Name: "lab.pdf", Checksum: checksumOf("another lab report")}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Fingerprint(tt.bundle)
			if err != nil {
				t.Fatalf("Fingerprint() error = %v", err)
			}
			if got == base {
				t.Error("expected a different fingerprint")
			}
		})
	}
}

func TestValidateRejectsBadBundles(t *testing.T) {
	good := base64.StdEncoding.EncodeToString([]byte(meterLog))

	tests := []struct {
		name   string
		bundle Bundle
	}{
		{"missing metadata", Bundle{Documents: baseBundle.Documents}},
		{"metadata array", Bundle{Metadata: json.RawMessage(`[1,2]`), Documents: baseBundle.Documents}},
		{"metadata null", Bundle{Metadata: json.RawMessage(`null`), Documents: baseBundle.Documents}},
		{"no documents", Bundle{Metadata: baseBundle.Metadata}},
		{"bad checksum", Bundle{Metadata: baseBundle.Metadata, Documents: []Document{{Name: "a", Checksum: "abc"}}}},
		{"missing name", Bundle{Metadata: baseBundle.Metadata, Documents: []Document{{Checksum: meterSum}}}},
		{"content mismatch", Bundle{Metadata: baseBundle.Metadata, Documents: []Document{{Name: "a", Checksum: labSum, Content: good}}}},
		{"content not base64", Bundle{Metadata: baseBundle.Metadata, Documents: []Document{{Name: "a", Checksum: meterSum, Content: "!!!"}}}},
		{"size mismatch", Bundle{Metadata: baseBundle.Metadata, Documents: []Document{{Name: "a", Checksum: meterSum, Content: good, Size: 3}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Fingerprint(tt.bundle)
			if !errors.Is(err, ErrInvalidBundle) {
				t.Errorf("expected ErrInvalidBundle, got %v", err)
			}
		})
	}
}

func TestStripRemovesContent(t *testing.T) {
	b := Bundle{
		Metadata:  baseBundle.Metadata,
		Documents: []Document{{Name: "meter.csv", Checksum: strings.ToUpper(meterSum), Content: base64.StdEncoding.EncodeToString([]byte(meterLog))}},
	}
	stripped := b.Strip()
	if stripped.Documents[0].Content != "" {
		t.Error("expected content to be removed")
	}
	if stripped.Documents[0].Checksum != meterSum {
		t.Error("expected checksum to be normalised to lower case")
	}
	if b.Documents[0].Content == "" {
		t.Error("Strip must not modify the original bundle")
	}
}

func TestCopiesDoNotShareMemory(t *testing.T) {
	newBundle := func() Bundle {
		return Bundle{
			Metadata:  json.RawMessage(`{"batchId":"B1"}`),
			Documents: []Document{{Name: "meter.csv", Checksum: meterSum}},
		}
	}

	for name, copyOf := range map[string]func(Bundle) Bundle{"Strip": Bundle.Strip, "Clone": Bundle.Clone} {
		t.Run(name, func(t *testing.T) {
			b := newBundle()
			c := copyOf(b)
			c.Metadata[2] = 'X'
			c.Documents[0].Name = "tampered.csv"

			if string(b.Metadata) != `{"batchId":"B1"}` {
				t.Errorf("original metadata changed to %s", b.Metadata)
			}
			if b.Documents[0].Name != "meter.csv" {
				t.Errorf("original document renamed to %s", b.Documents[0].Name)
			}
		})
	}
}

func TestHash(t *testing.T) {
	if _, err := Hash(nil); err == nil {
		t.Error("expected error for empty data")
	}
	got, err := Hash([]byte(meterLog))
	if err != nil || got != meterSum {
		t.Errorf("Hash() = %s, %v; want %s", got, err, meterSum)
	}
	if _, _, err := HashFromBase64(strings.Repeat("A", 16), 8); err == nil {
		t.Error("expected error for oversized content")
	}
}
