package updater

import "fmt"

// ConfigReason classifies configuration failures of a sync attempt.
type ConfigReason string

const (
	// ReasonFetchDisabled means syncing is turned off; the attempt is a
	// no-op. Silent for automatic ticks, surfaced for forced syncs.
	ReasonFetchDisabled ConfigReason = "fetch_disabled"

	// ReasonInvalidLocator means the configured custom remote locator
	// does not have a recognized scheme.
	ReasonInvalidLocator ConfigReason = "invalid_locator"
)

// ConfigError reports a sync attempt rejected before any network activity.
type ConfigError struct {
	Reason  ConfigReason
	Locator string
}

func (e *ConfigError) Error() string {
	switch e.Reason {
	case ReasonFetchDisabled:
		return "catalog sync is disabled"
	case ReasonInvalidLocator:
		return fmt.Sprintf("invalid remote locator %q", e.Locator)
	default:
		return fmt.Sprintf("sync config error: %s", e.Reason)
	}
}

// FetchReason classifies network retrieval failures.
type FetchReason string

const (
	// ReasonUnreachable covers transport failures: timeouts, DNS, refused
	// connections.
	ReasonUnreachable FetchReason = "unreachable"

	// ReasonBadStatus means the remote answered with a non-2xx status.
	ReasonBadStatus FetchReason = "bad_status"

	// ReasonBadPayload means the remote answered 2xx but the body was not
	// decodable as the expected content.
	ReasonBadPayload FetchReason = "bad_payload"

	// ReasonKnownBad means the locator already failed this process
	// lifetime and is skipped without network I/O.
	ReasonKnownBad FetchReason = "known_bad"
)

// FetchError reports a failed network retrieval.
type FetchError struct {
	Reason  FetchReason
	Locator string
	Status  int   // HTTP status for bad_status
	Err     error // underlying transport error, if any
}

func (e *FetchError) Error() string {
	switch e.Reason {
	case ReasonBadStatus:
		return fmt.Sprintf("fetch %s: unexpected status %d", e.Locator, e.Status)
	case ReasonBadPayload:
		return fmt.Sprintf("fetch %s: payload is not decodable: %v", e.Locator, e.Err)
	case ReasonKnownBad:
		return fmt.Sprintf("fetch %s: locator already failed this session", e.Locator)
	default:
		if e.Err != nil {
			return fmt.Sprintf("fetch %s: %v", e.Locator, e.Err)
		}
		return fmt.Sprintf("fetch %s: unreachable", e.Locator)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }
