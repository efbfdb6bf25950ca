package core

import (
	"context"
	"fmt"

	"samplecore/pkg/domain"
)

// NewTerminalStatusRule returns a rule that blocks status edits on samples
// already in a terminal state and rejects statuses outside the lifecycle.
func NewTerminalStatusRule() domain.Rule {
	return terminalStatusRule{}
}

type terminalStatusRule struct{}

func (terminalStatusRule) Name() string { return "terminal_status" }

func (terminalStatusRule) Evaluate(_ context.Context, _ domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, ch := range changes {
		if ch.Entity != domain.EntitySample || ch.Action != domain.ActionUpdate {
			continue
		}
		before, okB := ch.Before.(domain.Sample)
		after, okA := ch.After.(domain.Sample)
		if !okB || !okA {
			continue
		}
		if !domain.ValidStatus(after.Status) {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "terminal_status",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("sample %s assigned unknown status %q", after.ID, after.Status),
				Entity:   domain.EntitySample,
				EntityID: after.ID,
			})
			continue
		}
		if before.Status != after.Status && domain.TerminalStatus(before.Status) {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "terminal_status",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("sample %s is %s; no further transitions allowed", before.ID, before.Status),
				Entity:   domain.EntitySample,
				EntityID: after.ID,
			})
		}
	}
	return res, nil
}
