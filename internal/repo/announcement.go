package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/issessions/quest-board-gateway/internal/domain"
)

var (
	// ErrNotFound is returned when no live announcement exists.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates the submission was already announced.
	ErrDuplicate = errors.New("duplicate")
)

// GetAnnouncement returns the unexpired announcement for submissionID or
// ErrNotFound.
func GetAnnouncement(ctx context.Context, db *gorm.DB, submissionID int64, now time.Time) (*domain.AnnouncementRecord, error) {
	var rec domain.AnnouncementRecord
	err := db.WithContext(ctx).
		Where("submission_id = ? AND expires_at > ?", submissionID, now.UTC()).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateAnnouncement records a delivered announcement that lives for ttl.
// Expired rows are purged first so a submission may be announced again once
// its record lapses. A live record for the same submission yields ErrDuplicate.
func CreateAnnouncement(ctx context.Context, db *gorm.DB, submissionID int64, challenge, solver string, now time.Time, ttl time.Duration) (*domain.AnnouncementRecord, error) {
	now = now.UTC()
	rec := &domain.AnnouncementRecord{
		ID:            uuid.NewString(),
		SubmissionID:  submissionID,
		ChallengeName: challenge,
		SolverName:    solver,
		CreatedAt:     now,
		ExpiresAt:     now.Add(ttl),
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("expires_at <= ?", now).Delete(&domain.AnnouncementRecord{}).Error; err != nil {
			return err
		}
		return tx.Create(rec).Error
	})
	if err != nil {
		// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
		low := strings.ToLower(err.Error())
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(low, "unique constraint failed") ||
			strings.Contains(low, "constraint failed: unique") {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}
