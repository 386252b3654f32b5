package database

// Status represents the lifecycle state of a classification request or
// of a single item within one
type Status string

const (
	// StatusPending indicates the work has not been picked up yet
	StatusPending Status = "pending"

	// StatusClassifying indicates classification is in progress
	StatusClassifying Status = "classifying"

	// StatusCompleted indicates classification finished with a suggestion
	StatusCompleted Status = "completed"

	// StatusNoMatch indicates no tariff line overlapped the description
	StatusNoMatch Status = "no_match"

	// StatusFailed indicates classification failed due to an error
	StatusFailed Status = "failed"
)

// String renders the status for logs and SQL parameters.
func (s Status) String() string {
	return string(s)
}

// IsValid returns true for the statuses this service writes
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusClassifying, StatusCompleted, StatusNoMatch, StatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the queue is done with this item.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusNoMatch, StatusFailed:
		return true
	default:
		return false
	}
}

// IsError reports whether the status records a failure.
func (s Status) IsError() bool {
	return s == StatusFailed
}

// HasCodes returns true if code suggestions should be available
func (s Status) HasCodes() bool {
	return s == StatusCompleted
}

// NeedsReclassification returns true for items worth revisiting after a
// tariff reference update
func (s Status) NeedsReclassification() bool {
	return s == StatusNoMatch || s == StatusFailed
}
