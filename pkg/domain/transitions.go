package domain

// transitions maps each status to the set of statuses it may move to.
// Forward motion never skips a state; the only backward edge is the
// InStorage -> Validated recall. Completed and Rejected are terminal.
var transitions = map[SampleStatus]map[SampleStatus]struct{}{
	StatusPending:      toSet(StatusValidated, StatusRejected),
	StatusValidated:    toSet(StatusInStorage, StatusRejected),
	StatusInStorage:    toSet(StatusInSequencing, StatusValidated),
	StatusInSequencing: toSet(StatusCompleted),
	StatusCompleted:    {},
	StatusRejected:     {},
}

// ValidStatus reports whether the value is a known sample status.
func ValidStatus(s SampleStatus) bool {
	_, ok := transitions[s]
	return ok
}

// TerminalStatus reports whether the status permits no further transitions.
func TerminalStatus(s SampleStatus) bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

// ValidZoneCategory reports whether the value is a known zone category.
func ValidZoneCategory(c ZoneCategory) bool {
	switch c {
	case ZoneUltraLowFreezer, ZoneRefrigerator, ZoneRoomTemperature:
		return true
	}
	return false
}

// CanTransition reports whether the state machine permits moving from one
// status to another.
func CanTransition(from, to SampleStatus) bool {
	next, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

func toSet(values ...SampleStatus) map[SampleStatus]struct{} {
	set := make(map[SampleStatus]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
