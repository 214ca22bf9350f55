package monitor

// Evaluate reports whether status breaches t and which comparison failed.
func Evaluate(status GroupStatus, t ThresholdConfig) (Breach, bool) {
	under := status.ConsumerCount < t.MinConsumerCount
	over := status.BacklogTotal > t.MaxBacklogTotal

	var r Reason
	switch {
	case under && over:
		r = ReasonBoth
	case under:
		r = ReasonUnderMinConsumers
	case over:
		r = ReasonOverMaxBacklog
	default:
		return Breach{}, false
	}
	return Breach{Status: status, Threshold: t, Reason: r}, true
}
