package service

import (
	"strings"

	"github.com/richardliu001/agenda-service/internal/model"
)

// AgendaEventTypes are the event-log types that can change the agenda.
// The outbox worker filters on the same list.
var AgendaEventTypes = []string{
	"event.created",
	"event.updated",
	"event.cancelled",
	"tournament.created",
	"tournament.updated",
	"reservation.created",
	"reservation.updated",
	"reservation.cancelled",
	"booking.created",
	"booking.updated",
	"booking.cancelled",
	"booking.no_show",
	"soft_block.created",
	"soft_block.updated",
	"soft_block.deleted",
	"hard_block.created",
	"hard_block.updated",
	"hard_block.deleted",
	"match_slot.created",
	"match_slot.updated",
	"match_slot.deleted",
}

var agendaEventSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(AgendaEventTypes))
	for _, t := range AgendaEventTypes {
		m[t] = struct{}{}
	}
	return m
}()

// IsAgendaEvent reports whether eventType is on the allowlist.
func IsAgendaEvent(eventType string) bool {
	_, ok := agendaEventSet[eventType]
	return ok
}

var prefixSourceTypes = []struct {
	prefix string
	st     model.SourceType
}{
	{"event.", model.SourceEvent},
	{"tournament.", model.SourceTournament},
	{"reservation.", model.SourceBooking},
	{"booking.", model.SourceBooking},
	{"soft_block.", model.SourceSoftBlock},
	{"hard_block.", model.SourceHardBlock},
	{"match_slot.", model.SourceMatch},
}

// inferSourceType maps an event type to a SourceType by its namespace.
func inferSourceType(eventType string) (model.SourceType, bool) {
	for _, p := range prefixSourceTypes {
		if strings.HasPrefix(eventType, p.prefix) {
			return p.st, true
		}
	}
	return "", false
}

// normalizeSourceType accepts agenda types plus the finance-side aliases
// producers use for bookings.
func normalizeSourceType(s string) (model.SourceType, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch s {
	case "RESERVATION", "SERVICE_BOOKING":
		return model.SourceBooking, true
	}
	return model.ParseSourceType(s)
}

// sourceTypeResolution tells how a type was resolved.
type sourceTypeResolution int

const (
	resolvedFromPayload sourceTypeResolution = iota + 1
	resolvedFromLog
	resolvedFromPrefix
)

// ResolveSourceType picks the SourceType of entry. ok is false when the
// entry's type is not agenda-relevant; the caller ignores such entries.
// Resolution order: the payload's sourceType, then the entry's stored
// sourceType, then the event-type namespace.
func ResolveSourceType(entry *model.EventLog) (st model.SourceType, ok bool, code Code) {
	st, ok, code, _ = resolveSourceType(entry)
	return st, ok, code
}

func resolveSourceType(entry *model.EventLog) (model.SourceType, bool, Code, sourceTypeResolution) {
	if !IsAgendaEvent(entry.EventType) {
		return "", false, "", 0
	}
	if s, ok := payload(entry.Payload).str("sourceType"); ok {
		if st, ok := normalizeSourceType(s); ok {
			return st, true, "", resolvedFromPayload
		}
	}
	if entry.SourceType != nil {
		if st, ok := model.ParseSourceType(*entry.SourceType); ok {
			return st, true, "", resolvedFromLog
		}
	}
	if st, ok := inferSourceType(entry.EventType); ok {
		return st, true, "", resolvedFromPrefix
	}
	return "", true, CodeSourceTypeMissing, 0
}
