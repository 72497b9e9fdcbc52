package catalog

import "fmt"

// SchemaReason classifies why a catalog document failed to decode.
type SchemaReason string

const (
	// ReasonUnsupportedVersion means the document declares a version newer
	// than this build understands. The document is rejected in its entirety.
	ReasonUnsupportedVersion SchemaReason = "unsupported_version"

	// ReasonMalformedEntry means a single model entry is missing required
	// fields or carries invalid values.
	ReasonMalformedEntry SchemaReason = "malformed_entry"
)

// SchemaError reports a catalog document validation failure.
type SchemaError struct {
	Reason  SchemaReason
	Version int    // declared document version, for unsupported_version
	ModelID string // offending entry key, for malformed_entry (may be empty)
}

func (e *SchemaError) Error() string {
	switch e.Reason {
	case ReasonUnsupportedVersion:
		return fmt.Sprintf("catalog version %d is newer than supported version %d", e.Version, MaxSupportedVersion)
	case ReasonMalformedEntry:
		if e.ModelID != "" {
			return fmt.Sprintf("malformed catalog entry %q", e.ModelID)
		}
		return "malformed catalog entry"
	default:
		return fmt.Sprintf("catalog schema error: %s", e.Reason)
	}
}
