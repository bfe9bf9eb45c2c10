package service

// Code identifies why a materialization did not happen. Codes are returned
// as values so the delivering worker can pick its retry policy.
type Code string

const (
	CodeEventLogNotFound      Code = "EVENTLOG_NOT_FOUND"
	CodeSourceTypeMissing     Code = "SOURCE_TYPE_MISSING"
	CodeEventIDInvalid        Code = "EVENT_ID_INVALID"
	CodeEventNotFound         Code = "EVENT_NOT_FOUND"
	CodeTournamentIDInvalid   Code = "TOURNAMENT_ID_INVALID"
	CodeTournamentNotFound    Code = "TOURNAMENT_NOT_FOUND"
	CodeReservationIDInvalid  Code = "RESERVATION_ID_INVALID"
	CodeReservationNotFound   Code = "RESERVATION_NOT_FOUND"
	CodeSoftBlockIDInvalid    Code = "SOFT_BLOCK_ID_INVALID"
	CodeSoftBlockNotFound     Code = "SOFT_BLOCK_NOT_FOUND"
	CodeHardBlockIDInvalid    Code = "HARD_BLOCK_ID_INVALID"
	CodeHardBlockNotFound     Code = "HARD_BLOCK_NOT_FOUND"
	CodeMatchIDInvalid        Code = "MATCH_ID_INVALID"
	CodeMatchNotFound         Code = "MATCH_NOT_FOUND"
	CodeAgendaFieldsMissing   Code = "AGENDA_FIELDS_MISSING"
	CodeAgendaIntervalInvalid Code = "AGENDA_INTERVAL_INVALID"
	CodeOutboxEventMissingID  Code = "OUTBOX_EVENT_MISSING_ID"
)

// Result is the outcome of applying one event-log entry.
type Result struct {
	OK      bool `json:"ok"`
	Deduped bool `json:"deduped,omitempty"`
	Stale   bool `json:"stale,omitempty"`
	Code    Code `json:"code,omitempty"`
}

func applied() Result { return Result{OK: true} }
func deduped() Result { return Result{OK: true, Deduped: true} }
func stale() Result { return Result{OK: true, Stale: true} }
func failed(c Code) Result { return Result{Code: c} }
