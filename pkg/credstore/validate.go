package credstore

import (
	"encoding/json"

	"github.com/samber/lo"
)

// Finding names one violated store invariant.
type Finding int

const (
	// FindingDanglingLastUsedID: a last-used id exists but the credential
	// mapping does not.
	FindingDanglingLastUsedID Finding = iota
	// FindingSyntheticEntriesOnly: the mapping holds nothing but synthetic
	// test entries.
	FindingSyntheticEntriesOnly
	// FindingEnabledWithoutCredentials: the enabled flag is set but the
	// mapping is absent or unparseable.
	FindingEnabledWithoutCredentials
)

func (f Finding) String() string {
	switch f {
	case FindingDanglingLastUsedID:
		return "dangling last-used credential id"
	case FindingSyntheticEntriesOnly:
		return "only synthetic test credentials stored"
	case FindingEnabledWithoutCredentials:
		return "enabled flag set without usable credentials"
	default:
		return "unknown finding"
	}
}

// Report lists every violated invariant found by Validate.
type Report struct {
	Findings []Finding
}

func (r Report) OK() bool {
	return len(r.Findings) == 0
}

// Validate checks the persisted state against its invariants and returns a
// structured report. Registration repairs on any finding; authentication
// treats the same state as a hard validation failure. Validate itself never
// mutates anything.
func (s *Store) Validate() Report {
	raw, present, err := s.kv.Get(s.keys.Credentials)
	if err != nil {
		s.logger.Warn("credential mapping unreadable during validation", "error", err)
		present = false
	}

	var (
		parsed    = map[string]StoredCredential{}
		parseable = true
	)
	if present {
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			parseable = false
		}
	}
	usable := present && parseable && len(parsed) > 0

	var report Report
	if s.LastUsedID() != "" && !usable {
		report.Findings = append(report.Findings, FindingDanglingLastUsedID)
	}
	if len(parsed) > 0 && lo.EveryBy(lo.Keys(parsed), IsSynthetic) {
		report.Findings = append(report.Findings, FindingSyntheticEntriesOnly)
	}
	if s.Enabled() && (!present || !parseable) {
		report.Findings = append(report.Findings, FindingEnabledWithoutCredentials)
	}

	return report
}

// DetectAndRepair runs Validate and clears all persisted entries when any
// invariant is violated. Reports whether a repair happened. Runs at the
// start of every registration attempt, never during authentication.
func (s *Store) DetectAndRepair() (bool, error) {
	report := s.Validate()
	if report.OK() {
		return false, nil
	}

	s.logger.Warn("credential store corrupt, clearing",
		"findings", lo.Map(report.Findings, func(f Finding, _ int) string { return f.String() }),
	)
	if err := s.ClearAll(); err != nil {
		return true, err
	}
	return true, nil
}
