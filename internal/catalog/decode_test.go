package catalog

import (
	"errors"
	"testing"
)

func TestDecode_Scenario(t *testing.T) {
	raw := []byte(`{
		"version": 2,
		"entries": [
			{
				"modelId": "RGB660",
				"imageRef": "http://x/rgb660.png",
				"capabilities": {"supportsRGB": true, "fxChannelCount": 17},
				"cctRange": {"min": 3200, "max": 5600}
			}
		]
	}`)

	cat, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if cat.Version != 2 {
		t.Errorf("Version = %d, want 2", cat.Version)
	}
	if cat.Len() != 1 {
		t.Fatalf("Len = %d, want 1", cat.Len())
	}

	m, ok := cat.Lookup("RGB660")
	if !ok {
		t.Fatal("Lookup(RGB660) not found")
	}
	if !m.Capabilities.SupportsRGB {
		t.Error("RGB660 should support RGB")
	}
	if m.Capabilities.FXChannelCount != 17 {
		t.Errorf("FXChannelCount = %d, want 17", m.Capabilities.FXChannelCount)
	}
	if m.CCTRange == nil || m.CCTRange.Min != 3200 || m.CCTRange.Max != 5600 {
		t.Errorf("CCTRange = %+v, want {3200 5600}", m.CCTRange)
	}
	if m.ImageRef != "http://x/rgb660.png" {
		t.Errorf("ImageRef = %q", m.ImageRef)
	}

	if _, ok := cat.Lookup("unknown"); ok {
		t.Error("Lookup(unknown) should be absent")
	}
}

func TestDecode_UnsupportedVersion(t *testing.T) {
	// Entries of a future version may not even be an array; the gate must
	// fire before they are parsed.
	raw := []byte(`{"version": 99, "entries": {"future": "shape"}}`)

	_, err := Decode(raw)
	var se *SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("expected SchemaError, got %v", err)
	}
	if se.Reason != ReasonUnsupportedVersion {
		t.Errorf("Reason = %s, want %s", se.Reason, ReasonUnsupportedVersion)
	}
	if se.Version != 99 {
		t.Errorf("Version = %d, want 99", se.Version)
	}
}

func TestDecode_MalformedEntriesSkipped(t *testing.T) {
	tests := []struct {
		name    string
		entries string
		wantIDs []string
	}{
		{
			name:    "missing_model_id",
			entries: `[{"imageRef": "http://x/a.png"}, {"modelId": "B"}]`,
			wantIDs: []string{"B"},
		},
		{
			name:    "invalid_fx_channels",
			entries: `[{"modelId": "A", "capabilities": {"fxChannelCount": 5}}, {"modelId": "B"}]`,
			wantIDs: []string{"B"},
		},
		{
			name:    "inverted_cct_range",
			entries: `[{"modelId": "A", "cctRange": {"min": 5600, "max": 3200}}, {"modelId": "B"}]`,
			wantIDs: []string{"B"},
		},
		{
			name:    "duplicate_model_id",
			entries: `[{"modelId": "A", "imageRef": "first"}, {"modelId": "A", "imageRef": "second"}]`,
			wantIDs: []string{"A"},
		},
		{
			name:    "entry_not_an_object",
			entries: `["bogus", {"modelId": "B"}]`,
			wantIDs: []string{"B"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := []byte(`{"version": 1, "entries": ` + tt.entries + `}`)
			cat, err := Decode(raw)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if cat.Len() != len(tt.wantIDs) {
				t.Fatalf("Len = %d, want %d", cat.Len(), len(tt.wantIDs))
			}
			for _, id := range tt.wantIDs {
				if _, ok := cat.Lookup(id); !ok {
					t.Errorf("Lookup(%s) not found", id)
				}
			}
		})
	}
}

func TestDecode_DuplicateKeepsFirst(t *testing.T) {
	raw := []byte(`{"version": 1, "entries": [
		{"modelId": "A", "imageRef": "first"},
		{"modelId": "A", "imageRef": "second"}
	]}`)
	cat, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	m, _ := cat.Lookup("A")
	if m.ImageRef != "first" {
		t.Errorf("ImageRef = %q, want first entry retained", m.ImageRef)
	}
}

func TestDecode_NotJSON(t *testing.T) {
	if _, err := Decode([]byte("not json at all")); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestDecode_NoVersion(t *testing.T) {
	if _, err := Decode([]byte(`{"entries": []}`)); err == nil {
		t.Fatal("expected error for missing version")
	}
}

func TestCache_ReplaceAndLookup(t *testing.T) {
	c := NewCache()

	if c.Current() != nil {
		t.Error("fresh cache should have no catalog")
	}
	if c.Version() != 0 || c.Len() != 0 {
		t.Error("fresh cache should report zero version and length")
	}
	if _, ok := c.Lookup("A"); ok {
		t.Error("fresh cache should not resolve lookups")
	}

	c.Replace(New(1, []Model{{ModelID: "A"}}))
	if c.Version() != 1 {
		t.Errorf("Version = %d, want 1", c.Version())
	}
	if _, ok := c.Lookup("A"); !ok {
		t.Error("Lookup(A) should resolve after Replace")
	}

	old := c.Current()
	c.Replace(New(2, []Model{{ModelID: "B"}}))
	if _, ok := old.Lookup("A"); !ok {
		t.Error("old snapshot must stay intact after Replace")
	}
	if _, ok := c.Lookup("B"); !ok {
		t.Error("Lookup(B) should resolve against new catalog")
	}
}
