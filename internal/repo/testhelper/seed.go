package testhelper

import (
	"testing"

	"github.com/richardliu001/agenda-service/internal/model"
	"gorm.io/gorm"
)

// Seed inserts rows in order, failing the test on the first error.
func Seed(t *testing.T, db *gorm.DB, rows ...interface{}) {
	t.Helper()
	for _, row := range rows {
		if err := db.Create(row).Error; err != nil {
			t.Fatalf("testhelper: seed %T: %v", row, err)
		}
	}
}

// AgendaRows returns every agenda row of org ordered by id.
func AgendaRows(t *testing.T, db *gorm.DB, orgID int64) []model.AgendaItem {
	t.Helper()
	var out []model.AgendaItem
	if err := db.Where("organization_id = ?", orgID).Order("id").Find(&out).Error; err != nil {
		t.Fatalf("testhelper: list agenda: %v", err)
	}
	return out
}
