package catalog

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
)

// header carries only the declared version so the gate can run before the
// entries are parsed at all: a newer document's entry shape is not
// guaranteed to even be an array.
type header struct {
	Version int `json:"version"`
}

type envelope struct {
	Entries []json.RawMessage `json:"entries"`
}

// Decode parses and validates a catalog document.
//
// The version gate runs first: a document declaring a version newer than
// MaxSupportedVersion fails closed with SchemaError(unsupported_version)
// before any entry is decoded. Individual malformed entries are skipped
// with a warning and the rest of the catalog is retained; an entry is
// never given a substitute modelId.
func Decode(raw []byte) (*Catalog, error) {
	var hdr header
	if err := json.Unmarshal(raw, &hdr); err != nil {
		return nil, fmt.Errorf("catalog document is not valid JSON: %w", err)
	}

	if hdr.Version > MaxSupportedVersion {
		return nil, &SchemaError{Reason: ReasonUnsupportedVersion, Version: hdr.Version}
	}
	if hdr.Version <= 0 {
		return nil, fmt.Errorf("catalog document declares no version")
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("catalog entries are not decodable: %w", err)
	}

	cat := &Catalog{
		Version: hdr.Version,
		Models:  make([]Model, 0, len(env.Entries)),
	}
	seen := make(map[string]struct{}, len(env.Entries))

	for i, entry := range env.Entries {
		m, err := decodeModel(entry)
		if err != nil {
			log.Warn().Err(err).Int("index", i).Msg("Skipping malformed catalog entry")
			continue
		}
		if _, dup := seen[m.ModelID]; dup {
			log.Warn().Str("model_id", m.ModelID).Int("index", i).Msg("Skipping duplicate catalog entry")
			continue
		}
		seen[m.ModelID] = struct{}{}
		cat.Models = append(cat.Models, m)
	}

	cat.reindex()
	return cat, nil
}

// decodeModel decodes and validates a single entry.
func decodeModel(raw json.RawMessage) (Model, error) {
	var m Model
	if err := json.Unmarshal(raw, &m); err != nil {
		return Model{}, &SchemaError{Reason: ReasonMalformedEntry}
	}
	if m.ModelID == "" {
		return Model{}, &SchemaError{Reason: ReasonMalformedEntry}
	}
	switch m.Capabilities.FXChannelCount {
	case FXChannelsNone, FXChannelsBasic, FXChannelsFull:
	default:
		return Model{}, &SchemaError{Reason: ReasonMalformedEntry, ModelID: m.ModelID}
	}
	if r := m.CCTRange; r != nil && r.Min > r.Max {
		return Model{}, &SchemaError{Reason: ReasonMalformedEntry, ModelID: m.ModelID}
	}
	return m, nil
}
