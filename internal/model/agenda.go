package model

import "time"

// SourceType tags the aggregate an agenda row was projected from.
type SourceType string

const (
	SourceEvent      SourceType = "EVENT"
	SourceTournament SourceType = "TOURNAMENT"
	SourceBooking    SourceType = "BOOKING"
	SourceSoftBlock  SourceType = "SOFT_BLOCK"
	SourceHardBlock  SourceType = "HARD_BLOCK"
	SourceMatch      SourceType = "MATCH"
)

// Agenda statuses set by the materializer itself. Everything else mirrors
// the origin aggregate's lifecycle verbatim.
const (
	StatusActive  = "ACTIVE"
	StatusDeleted = "DELETED"
)

// AgendaSourceTypes lists every SourceType the agenda knows about.
var AgendaSourceTypes = []SourceType{
	SourceEvent, SourceTournament, SourceBooking, SourceSoftBlock, SourceHardBlock, SourceMatch,
}

// RebuildableSourceTypes are recomputed by reconciliation. Events and
// tournaments are only ever written by the incremental consumer.
var RebuildableSourceTypes = []SourceType{
	SourceSoftBlock, SourceBooking, SourceMatch, SourceHardBlock,
}

// ParseSourceType returns the SourceType named by s, if any.
func ParseSourceType(s string) (SourceType, bool) {
	for _, st := range AgendaSourceTypes {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// AgendaItem is one row of the denormalized calendar read model.
// (OrganizationID, SourceType, SourceID) is unique.
type AgendaItem struct {
	ID             uint64     `gorm:"primaryKey"`
	OrganizationID int64      `gorm:"not null;uniqueIndex:ux_agenda_items_source,priority:1;index:ix_agenda_items_window,priority:1"`
	SourceType     SourceType `gorm:"size:32;not null;uniqueIndex:ux_agenda_items_source,priority:2"`
	SourceID       string     `gorm:"size:64;not null;uniqueIndex:ux_agenda_items_source,priority:3"`
	Title          string     `gorm:"size:255;not null"`
	StartsAt       time.Time  `gorm:"not null;index:ix_agenda_items_window,priority:2"`
	EndsAt         time.Time  `gorm:"not null"`
	Status         string     `gorm:"size:32;not null"`
	LastEventID    string     `gorm:"size:64;not null"`
	LastSequence   uint64     `gorm:"not null;default:0"`
	UpdatedAt      time.Time  `gorm:"not null;autoUpdateTime:false"`
}

func (AgendaItem) TableName() string { return "agenda_items" }

// SameProjection reports whether the user-visible fields of a and b match.
func (a AgendaItem) SameProjection(b AgendaItem) bool {
	return a.Title == b.Title &&
		a.Status == b.Status &&
		a.StartsAt.Equal(b.StartsAt) &&
		a.EndsAt.Equal(b.EndsAt)
}
