package core

import (
	"context"
	"fmt"

	"samplecore/pkg/domain"
)

// NewBarcodeUniqueRule returns a rule asserting barcode uniqueness across
// the full sample set at commit time. Stores reject duplicates on insert
// already; this is the end-of-transaction audit over the whole snapshot.
func NewBarcodeUniqueRule() domain.Rule {
	return barcodeUniqueRule{}
}

type barcodeUniqueRule struct{}

func (barcodeUniqueRule) Name() string { return "barcode_unique" }

func (barcodeUniqueRule) Evaluate(_ context.Context, view domain.TransactionView, _ []domain.Change) (domain.Result, error) {
	seen := make(map[string]string)
	res := domain.Result{}
	for _, sample := range view.ListSamples() {
		if prev, dup := seen[sample.Barcode]; dup {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "barcode_unique",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("barcode %s shared by samples %s and %s", sample.Barcode, prev, sample.ID),
				Entity:   domain.EntitySample,
				EntityID: sample.ID,
			})
			continue
		}
		seen[sample.Barcode] = sample.ID
	}
	return res, nil
}
