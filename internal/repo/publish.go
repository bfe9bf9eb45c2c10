package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/richardliu001/agenda-service/internal/model"
	"github.com/segmentio/kafka-go"
)

// AgendaChange is the message published whenever an agenda row is written.
type AgendaChange struct {
	OrganizationID int64            `json:"organizationId"`
	SourceType     model.SourceType `json:"sourceType"`
	SourceID       string           `json:"sourceId"`
	Title          string           `json:"title"`
	StartsAt       time.Time        `json:"startsAt"`
	EndsAt         time.Time        `json:"endsAt"`
	Status         string           `json:"status"`
	LastEventID    string           `json:"lastEventId"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// PublishAgendaChange sends item to Kafka keyed by its agenda key, so all
// changes to one row land on one partition in order.
func (r *Repository) PublishAgendaChange(ctx context.Context, item model.AgendaItem) error {
	if r.writer == nil {
		return nil
	}
	body, err := json.Marshal(AgendaChange{
		OrganizationID: item.OrganizationID,
		SourceType:     item.SourceType,
		SourceID:       item.SourceID,
		Title:          item.Title,
		StartsAt:       item.StartsAt,
		EndsAt:         item.EndsAt,
		Status:         item.Status,
		LastEventID:    item.LastEventID,
		UpdatedAt:      item.UpdatedAt,
	})
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(fmt.Sprintf("%d:%s:%s", item.OrganizationID, item.SourceType, item.SourceID)),
		Value: body,
		Time:  time.Now(),
	}
	return r.writer.WriteMessages(ctx, msg)
}
