package stores

import "time"

// OperationStatus tracks the outcome of a journaled operation.
type OperationStatus string

const (
	OperationStatusCompleted OperationStatus = "completed"
	OperationStatusFailed    OperationStatus = "failed"
)

// OperationRecord is one entry in the operation journal.
type OperationRecord struct {
	ID        string
	Operation string
	Package   string
	Version   string
	Status    OperationStatus
	Error     *string
	StartedAt time.Time
	Duration  time.Duration
}

// ReleaseRecord is a cached registry resolution. Requested is the
// version the caller asked for (empty for latest); Resolved is what the
// registry answered with.
type ReleaseRecord struct {
	RegistryID  string
	Requested   string
	Resolved    string
	DownloadURL string
	RepoURL     string
	FetchedAt   time.Time
}
