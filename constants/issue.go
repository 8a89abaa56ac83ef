package constants

// IssueKind classifies validation issues raised during a run.
type IssueKind string

// Stable values (serialized into the output document).
const (
	IssueChecksumFail     IssueKind = "checksum-fail"
	IssueMissingValue     IssueKind = "missing-value"
	IssueConflictingValue IssueKind = "conflicting-value"
	IssueTotalMismatch    IssueKind = "total-mismatch"
	IssueWeightMismatch   IssueKind = "weight-mismatch"
	IssueExtractionFailed IssueKind = "extraction-failed"
	IssueArbitration      IssueKind = "arbitration-unavailable"
)

// Severity ranks an issue's impact on the emitted portfolio.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)
