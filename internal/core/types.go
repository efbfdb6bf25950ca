package core

import "samplecore/pkg/domain"

type (
	EntityType         = domain.EntityType
	SampleStatus       = domain.SampleStatus
	ZoneCategory       = domain.ZoneCategory
	QCOutcome          = domain.QCOutcome
	Severity           = domain.Severity
	Base               = domain.Base
	Sample             = domain.Sample
	StorageZone        = domain.StorageZone
	StorageLocation    = domain.StorageLocation
	MovementRecord     = domain.MovementRecord
	QCResult           = domain.QCResult
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RulesEngine        = domain.RulesEngine
	RuleViolationError = domain.RuleViolationError
	Event              = domain.Event
	EventSink          = domain.EventSink
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
)

const (
	EntitySample          = domain.EntitySample
	EntityStorageZone     = domain.EntityStorageZone
	EntityStorageLocation = domain.EntityStorageLocation
	EntityMovement        = domain.EntityMovement
	EntityQCResult        = domain.EntityQCResult
)

const (
	StatusPending      = domain.StatusPending
	StatusValidated    = domain.StatusValidated
	StatusInStorage    = domain.StatusInStorage
	StatusInSequencing = domain.StatusInSequencing
	StatusCompleted    = domain.StatusCompleted
	StatusRejected     = domain.StatusRejected
)

const (
	ZoneUltraLowFreezer = domain.ZoneUltraLowFreezer
	ZoneRefrigerator    = domain.ZoneRefrigerator
	ZoneRoomTemperature = domain.ZoneRoomTemperature
)

const (
	QCPass    = domain.QCPass
	QCFail    = domain.QCFail
	QCWarning = domain.QCWarning
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
)
