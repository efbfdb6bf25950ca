package core

import "samplecore/pkg/domain"

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
// Every rule here is a commit-time backstop: the service refuses invalid
// operations up front, and these rules block any transaction that would
// still leave the store violating an invariant.
func NewDefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewSingleOccupancyRule())
	engine.Register(NewLedgerReplayRule())
	engine.Register(NewBarcodeUniqueRule())
	engine.Register(NewZoneCompatibilityRule())
	engine.Register(NewTerminalStatusRule())
	return engine
}
