package constants

// RecordStage tracks a record through the pipeline. Transitions only
// move forward; a record that fails a stage stays terminal at it.
type RecordStage string

const (
	StageDrafted    RecordStage = "DRAFTED"
	StageTyped      RecordStage = "TYPED"
	StageNormalized RecordStage = "NORMALIZED"
	StageValidated  RecordStage = "VALIDATED"
)

// RunStatus is the canonical status for a statement processing run.
type RunStatus string

const (
	RunPending    RunStatus = "PENDING"
	RunProcessing RunStatus = "PROCESSING"
	RunCompleted  RunStatus = "COMPLETED"
	RunFailed     RunStatus = "FAILED"
)

// Severity is a validation verdict level. Ordering matters: a record's
// verdict is the maximum severity across its triggered rules.
type Severity int

const (
	SeverityValid Severity = iota
	SeverityWarning
	SeverityRejected
)

func (s Severity) String() string {
	switch s {
	case SeverityValid:
		return "valid"
	case SeverityWarning:
		return "warning"
	case SeverityRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// MaxSeverity returns the stricter of two severities.
func MaxSeverity(a, b Severity) Severity {
	if b > a {
		return b
	}
	return a
}
