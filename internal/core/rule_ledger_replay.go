package core

import (
	"context"
	"fmt"

	"samplecore/pkg/domain"
)

// NewLedgerReplayRule returns a rule that replays each touched sample's
// movement ledger and verifies the derived position matches the sample's
// current location pointer.
func NewLedgerReplayRule() domain.Rule {
	return ledgerReplayRule{}
}

type ledgerReplayRule struct{}

func (ledgerReplayRule) Name() string { return "ledger_replay" }

func (ledgerReplayRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	touched := make(map[string]struct{})
	for _, ch := range changes {
		switch ch.Entity {
		case domain.EntitySample:
			if s, ok := ch.After.(domain.Sample); ok {
				touched[s.ID] = struct{}{}
			}
		case domain.EntityMovement:
			if m, ok := ch.After.(domain.MovementRecord); ok {
				touched[m.SampleID] = struct{}{}
			}
		}
	}

	res := domain.Result{}
	for sampleID := range touched {
		sample, ok := view.FindSample(sampleID)
		if !ok {
			continue
		}
		history := view.MovementHistory(sampleID)
		var derived *string
		for _, rec := range history {
			derived = rec.ToLocationID
		}
		if !sameLocation(derived, sample.CurrentLocationID) {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "ledger_replay",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("sample %s location pointer diverges from ledger replay", sampleID),
				Entity:   domain.EntitySample,
				EntityID: sampleID,
			})
		}
	}
	return res, nil
}

func sameLocation(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
