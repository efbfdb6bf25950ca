package core

import (
	"context"
	"fmt"

	"samplecore/pkg/domain"
)

// NewSingleOccupancyRule returns the in-transaction rule enforcing the
// storage occupancy invariants: at most one sample points at any
// location, and each location's occupancy flag agrees with the samples
// that reference it.
func NewSingleOccupancyRule() domain.Rule {
	return singleOccupancyRule{}
}

type singleOccupancyRule struct{}

func (singleOccupancyRule) Name() string { return "single_occupancy" }

func (singleOccupancyRule) Evaluate(_ context.Context, view domain.TransactionView, _ []domain.Change) (domain.Result, error) {
	occupants := make(map[string][]string)
	for _, sample := range view.ListSamples() {
		if sample.CurrentLocationID == nil {
			continue
		}
		occupants[*sample.CurrentLocationID] = append(occupants[*sample.CurrentLocationID], sample.ID)
	}

	res := domain.Result{}
	for locID, sampleIDs := range occupants {
		if len(sampleIDs) > 1 {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "single_occupancy",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("location %s claimed by %d samples", locID, len(sampleIDs)),
				Entity:   domain.EntityStorageLocation,
				EntityID: locID,
			})
		}
	}

	for _, loc := range view.ListLocations() {
		refs := len(occupants[loc.ID])
		switch {
		case loc.Occupied && refs != 1:
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "single_occupancy",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("location %s (%s) flagged occupied but referenced by %d samples", loc.ID, loc.Code, refs),
				Entity:   domain.EntityStorageLocation,
				EntityID: loc.ID,
			})
		case !loc.Occupied && refs != 0:
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "single_occupancy",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("location %s (%s) flagged free but referenced by %d samples", loc.ID, loc.Code, refs),
				Entity:   domain.EntityStorageLocation,
				EntityID: loc.ID,
			})
		}
	}
	return res, nil
}
