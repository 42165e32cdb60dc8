package ports

type ActionMetrics interface {
	RecordSuccess(action string)
	RecordSkip(action string)
	RecordFailure(action string)
}
