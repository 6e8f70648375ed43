package domain

// NextStatus returns the status reached by clicking the status indicator:
// pending -> in_progress -> completed -> pending. Unknown statuses restart
// the cycle at pending.
func NextStatus(s Status) Status {
	switch s {
	case StatusPending:
		return StatusInProgress
	case StatusInProgress:
		return StatusCompleted
	default:
		return StatusPending
	}
}
