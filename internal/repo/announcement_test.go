package repo

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/issessions/quest-board-gateway/internal/domain"
)

func newAnnouncementDB(t *testing.T) *gorm.DB {
	t.Helper()
	// One in-memory database per test so schemas never leak across tests.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestGetAnnouncement_MissingOrExpired(t *testing.T) {
	db := newAnnouncementDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := GetAnnouncement(ctx, db, 1, now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing: err = %v, want ErrNotFound", err)
	}

	if _, err := CreateAnnouncement(ctx, db, 1, "c", "s", now.Add(-2*time.Hour), time.Hour); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := GetAnnouncement(ctx, db, 1, now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired: err = %v, want ErrNotFound", err)
	}
}

func TestCreateAnnouncement_RoundTripAndDuplicate(t *testing.T) {
	db := newAnnouncementDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	rec, err := CreateAnnouncement(ctx, db, 512, "The Dragon's Cipher", "Thorin", now, time.Hour)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.ID == "" || !rec.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected record: %+v", rec)
	}

	got, err := GetAnnouncement(ctx, db, 512, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ChallengeName != "The Dragon's Cipher" || got.SolverName != "Thorin" {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	if _, err := CreateAnnouncement(ctx, db, 512, "x", "y", now.Add(time.Minute), time.Hour); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("second create: err = %v, want ErrDuplicate", err)
	}
}

func TestCreateAnnouncement_ReplacesExpired(t *testing.T) {
	db := newAnnouncementDB(t)
	ctx := context.Background()
	start := time.Now().UTC()

	if _, err := CreateAnnouncement(ctx, db, 7, "old", "old", start, time.Minute); err != nil {
		t.Fatalf("seed: %v", err)
	}
	later := start.Add(2 * time.Minute)
	if _, err := CreateAnnouncement(ctx, db, 7, "new", "new", later, time.Minute); err != nil {
		t.Fatalf("re-announce after expiry: %v", err)
	}

	var n int64
	db.Model(&domain.AnnouncementRecord{}).Count(&n)
	if n != 1 {
		t.Fatalf("expired row not purged, count = %d", n)
	}
}
