package domain

// ReportTargetKind is what a report is about.
type ReportTargetKind string

const (
	TargetUser    ReportTargetKind = "user"
	TargetPhoto   ReportTargetKind = "photo"
	TargetMessage ReportTargetKind = "message"
)

func (k ReportTargetKind) Valid() bool {
	switch k {
	case TargetUser, TargetPhoto, TargetMessage:
		return true
	}
	return false
}

// ReportStatus only moves forward: pending, reviewed, closed.
type ReportStatus string

const (
	ReportPending  ReportStatus = "pending"
	ReportReviewed ReportStatus = "reviewed"
	ReportClosed   ReportStatus = "closed"
)

func (s ReportStatus) rank() int {
	switch s {
	case ReportPending:
		return 1
	case ReportReviewed:
		return 2
	case ReportClosed:
		return 3
	}
	return 0
}

func (s ReportStatus) Valid() bool { return s.rank() > 0 }

// CanAdvanceTo reports whether moving from s to next keeps the status
// monotonic. Staying put is allowed.
func (s ReportStatus) CanAdvanceTo(next ReportStatus) bool {
	return next.Valid() && next.rank() >= s.rank()
}
