package models

// PageStatus represents the outcome of a page fetch in the visited store
type PageStatus string

const (
	PageStatusUnset    PageStatus = ""
	PageStatusSuccess  PageStatus = "success"   // Fetched and parsed; counts toward max_pages
	PageStatusFailure  PageStatus = "failure"   // Attempted once, never refetched
	PageStatusNotFound PageStatus = "not_found" // Not in the store
)

// String implements fmt.Stringer for logging
func (s PageStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the status is a stored operational value
func (s PageStatus) IsValid() bool {
	return s == PageStatusSuccess || s == PageStatusFailure
}

// DownloadOutcome classifies how a queued item finished
type DownloadOutcome string

const (
	OutcomeSucceeded    DownloadOutcome = "succeeded"
	OutcomeFailed       DownloadOutcome = "failed"
	OutcomeSizeRejected DownloadOutcome = "size_rejected"
	OutcomeQuotaSkipped DownloadOutcome = "quota_skipped"
)

func (o DownloadOutcome) String() string { return string(o) }
