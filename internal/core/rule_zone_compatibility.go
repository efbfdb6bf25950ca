package core

import (
	"context"
	"fmt"

	"samplecore/pkg/domain"
)

// NewZoneCompatibilityRule returns a rule that checks every stored sample
// sits in a zone whose category matches the sample's storage requirement.
func NewZoneCompatibilityRule() domain.Rule {
	return zoneCompatibilityRule{}
}

type zoneCompatibilityRule struct{}

func (zoneCompatibilityRule) Name() string { return "zone_compatibility" }

func (zoneCompatibilityRule) Evaluate(_ context.Context, view domain.TransactionView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, sample := range view.ListSamples() {
		if sample.CurrentLocationID == nil {
			continue
		}
		loc, ok := view.FindLocation(*sample.CurrentLocationID)
		if !ok {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "zone_compatibility",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("sample %s references missing location %s", sample.ID, *sample.CurrentLocationID),
				Entity:   domain.EntitySample,
				EntityID: sample.ID,
			})
			continue
		}
		if sample.StorageRequirement == "" {
			continue
		}
		zone, ok := view.FindZone(loc.ZoneID)
		if !ok {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "zone_compatibility",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("location %s references missing zone %s", loc.ID, loc.ZoneID),
				Entity:   domain.EntityStorageLocation,
				EntityID: loc.ID,
			})
			continue
		}
		if zone.Category != sample.StorageRequirement {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "zone_compatibility",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("sample %s requires %s but zone %s is %s", sample.ID, sample.StorageRequirement, zone.ID, zone.Category),
				Entity:   domain.EntitySample,
				EntityID: sample.ID,
			})
		}
	}
	return res, nil
}
