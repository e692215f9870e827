package audit

import "time"

// Report aggregates a session's journal over a period for compliance
// review.
type Report struct {
	Period struct {
		Start time.Time `json:"start"`
		End   time.Time `json:"end"`
	} `json:"period"`
	Operations struct {
		Total         int            `json:"total"`
		ByType        map[string]int `json:"by_type"`
		ByUser        map[string]int `json:"by_user"`
		ByEnvironment map[string]int `json:"by_environment"`
	} `json:"operations"`
	Failures       []Entry `json:"failures"`
	SecurityEvents []Entry `json:"security_events"`
}

// ComplianceReport aggregates entries whose timestamp falls in
// [start, end). It reads the in-memory sequence index, so it covers the
// current session; historical sessions are aggregated downstream from
// the shipped journal files.
func (l *Log) ComplianceReport(start, end time.Time) *Report {
	report := &Report{}
	report.Period.Start = start
	report.Period.End = end
	report.Operations.ByType = make(map[string]int)
	report.Operations.ByUser = make(map[string]int)
	report.Operations.ByEnvironment = make(map[string]int)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.index.Ascend(func(e *Entry) bool {
		if e.Timestamp.Before(start) || !e.Timestamp.Before(end) {
			return true
		}

		if e.EventType == "security" {
			report.SecurityEvents = append(report.SecurityEvents, *e)
			return true
		}

		// Count each operation once, at initiation.
		if e.Status == StatusInitiated {
			report.Operations.Total++
			report.Operations.ByType[e.Operation]++
			report.Operations.ByUser[e.User]++
			if env, ok := e.Parameters["environment"].(string); ok {
				report.Operations.ByEnvironment[env]++
			}
		}

		if e.Status == StatusFailed {
			report.Failures = append(report.Failures, *e)
		}
		return true
	})

	return report
}
