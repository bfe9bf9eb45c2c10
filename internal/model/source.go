package model

import "time"

// The aggregates below are owned by other parts of the system. The agenda
// only ever reads them.

type Organization struct {
	ID            int64  `gorm:"primaryKey"`
	EventSequence uint64 `gorm:"not null;default:0"`
}

func (Organization) TableName() string { return "organizations" }

type Event struct {
	ID             int64     `gorm:"primaryKey"`
	OrganizationID int64     `gorm:"not null;index"`
	Title          string    `gorm:"size:255;not null"`
	StartsAt       time.Time `gorm:"not null"`
	EndsAt         *time.Time
	Status         string `gorm:"size:32;not null"`
}

func (Event) TableName() string { return "events" }

type Tournament struct {
	ID      int64  `gorm:"primaryKey"`
	EventID int64  `gorm:"not null;index"`
	Event   *Event `gorm:"foreignKey:EventID"`
}

func (Tournament) TableName() string { return "tournaments" }

type Service struct {
	ID             int64  `gorm:"primaryKey"`
	OrganizationID int64  `gorm:"not null;index"`
	Title          string `gorm:"size:255;not null"`
}

func (Service) TableName() string { return "services" }

type Booking struct {
	ID              int64     `gorm:"primaryKey"`
	OrganizationID  int64     `gorm:"not null;index"`
	ServiceID       int64     `gorm:"not null"`
	Service         *Service  `gorm:"foreignKey:ServiceID"`
	StartsAt        time.Time `gorm:"not null"`
	DurationMinutes int       `gorm:"not null"`
	Status          string    `gorm:"size:32;not null"`
}

func (Booking) TableName() string { return "bookings" }

// EndsAt is StartsAt plus the booked duration.
func (b Booking) EndsAt() time.Time {
	return b.StartsAt.Add(time.Duration(b.DurationMinutes) * time.Minute)
}

type SoftBlock struct {
	ID             int64     `gorm:"primaryKey"`
	OrganizationID int64     `gorm:"not null;index"`
	StartsAt       time.Time `gorm:"not null"`
	EndsAt         time.Time `gorm:"not null"`
	Reason         *string   `gorm:"size:255"`
}

func (SoftBlock) TableName() string { return "soft_blocks" }

// PadelCourtBlock is a hard block on a court.
type PadelCourtBlock struct {
	ID             int64     `gorm:"primaryKey"`
	OrganizationID int64     `gorm:"not null;index"`
	StartAt        time.Time `gorm:"not null"`
	EndAt          time.Time `gorm:"not null"`
	Label          *string   `gorm:"size:255"`
}

func (PadelCourtBlock) TableName() string { return "padel_court_blocks" }

// PadelMatch belongs to an organization through its event.
type PadelMatch struct {
	ID                     int64  `gorm:"primaryKey"`
	EventID                int64  `gorm:"not null;index"`
	Event                  *Event `gorm:"foreignKey:EventID"`
	PlannedStartAt         *time.Time
	PlannedEndAt           *time.Time
	PlannedDurationMinutes *int
	StartTime              *time.Time
	Status                 string `gorm:"size:32"`
}

func (PadelMatch) TableName() string { return "padel_matches" }

// Window returns the match's scheduled interval: planned start falling back
// to the actual start time, planned end falling back to start plus the
// planned duration. Either bound may be nil.
func (m PadelMatch) Window() (start, end *time.Time) {
	start = m.PlannedStartAt
	if start == nil {
		start = m.StartTime
	}
	end = m.PlannedEndAt
	if end == nil && start != nil && m.PlannedDurationMinutes != nil && *m.PlannedDurationMinutes != 0 {
		e := start.Add(time.Duration(*m.PlannedDurationMinutes) * time.Minute)
		end = &e
	}
	return start, end
}

// AllModels lists every table this service migrates in tests and dev.
func AllModels() []interface{} {
	return []interface{}{
		&Organization{}, &Event{}, &Tournament{}, &Service{}, &Booking{},
		&SoftBlock{}, &PadelCourtBlock{}, &PadelMatch{},
		&EventLog{}, &AgendaItem{}, &Operation{},
	}
}
