package sqlxrepos

import (
	"context"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/iems/core"
	"github.com/trezcool/iems/core/event"
)

var engagementColumns = []string{
	"event_id", "user_id", "has_viewed", "view_count", "viewed_at", "last_viewed_at", "liked", "liked_at", "wishlisted",
	"wishlisted_at", "share_count", "shared_at",
}

type engagementRow struct {
	EventID      string    `db:"event_id"`
	UserID       string    `db:"user_id"`
	HasViewed    bool      `db:"has_viewed"`
	ViewCount    int       `db:"view_count"`
	ViewedAt     null.Time `db:"viewed_at"`
	LastViewedAt null.Time `db:"last_viewed_at"`
	Liked        bool      `db:"liked"`
	LikedAt      null.Time `db:"liked_at"`
	Wishlisted   bool      `db:"wishlisted"`
	WishlistedAt null.Time `db:"wishlisted_at"`
	ShareCount   int       `db:"share_count"`
	SharedAt     null.Time `db:"shared_at"`
}

func (r engagementRow) record() event.EngagementRecord {
	return event.EngagementRecord{
		EventID:      r.EventID,
		UserID:       r.UserID,
		HasViewed:    r.HasViewed,
		ViewCount:    r.ViewCount,
		ViewedAt:     utcPtr(r.ViewedAt.Ptr()),
		LastViewedAt: utcPtr(r.LastViewedAt.Ptr()),
		Liked:        r.Liked,
		LikedAt:      utcPtr(r.LikedAt.Ptr()),
		Wishlisted:   r.Wishlisted,
		WishlistedAt: utcPtr(r.WishlistedAt.Ptr()),
		ShareCount:   r.ShareCount,
		SharedAt:     utcPtr(r.SharedAt.Ptr()),
	}
}

type engagementRepository struct {
	repository
}

var _ event.EngagementRepository = (*engagementRepository)(nil) // interface compliance check

func NewEngagementRepository(db *sqlx.DB) *engagementRepository {
	return &engagementRepository{repository{db: db}}
}

// RecordView upserts the (event, user) record: the first view creates it, the next ones bump its view count.
func (repo *engagementRepository) RecordView(ctx context.Context, eventID, userID string, at time.Time, exec ...core.DBExecutor) (event.EngagementRecord, error) {
	var row engagementRow
	query := psql.Insert("engagements").
		Columns("event_id", "user_id", "has_viewed", "view_count", "viewed_at", "last_viewed_at").
		Values(eventID, userID, true, 1, at.UTC(), at.UTC()).
		Suffix(`ON CONFLICT (event_id, user_id) DO UPDATE SET
			has_viewed = TRUE,
			view_count = engagements.view_count + 1,
			viewed_at = COALESCE(engagements.viewed_at, EXCLUDED.viewed_at),
			last_viewed_at = EXCLUDED.last_viewed_at
		RETURNING ` + strings.Join(engagementColumns, ", "))
	if err := repo.getContext(ctx, exec, &row, query); err != nil {
		return event.EngagementRecord{}, errors.Wrap(err, "recording view")
	}
	return row.record(), nil
}

func (repo *engagementRepository) GetEngagement(ctx context.Context, eventID, userID string, exec ...core.DBExecutor) (event.EngagementRecord, error) {
	var row engagementRow
	query := psql.Select(engagementColumns...).From("engagements").
		Where(sq.Eq{"event_id": eventID}).
		Where(sq.Eq{"user_id": userID})
	if err := repo.getContext(ctx, exec, &row, query); err != nil {
		return event.EngagementRecord{}, trapNoRowsErr(err, event.ErrEngagementNotFound, "finding engagement")
	}
	return row.record(), nil
}

func (repo *engagementRepository) SaveEngagement(ctx context.Context, rec event.EngagementRecord, exec ...core.DBExecutor) (event.EngagementRecord, error) {
	var row engagementRow
	query := psql.Insert("engagements").Columns(engagementColumns...).
		Values(
			rec.EventID, rec.UserID, rec.HasViewed, rec.ViewCount, nullTime(rec.ViewedAt), nullTime(rec.LastViewedAt),
			rec.Liked, nullTime(rec.LikedAt), rec.Wishlisted, nullTime(rec.WishlistedAt), rec.ShareCount, nullTime(rec.SharedAt),
		).
		Suffix(`ON CONFLICT (event_id, user_id) DO UPDATE SET
			has_viewed = EXCLUDED.has_viewed,
			view_count = EXCLUDED.view_count,
			viewed_at = EXCLUDED.viewed_at,
			last_viewed_at = EXCLUDED.last_viewed_at,
			liked = EXCLUDED.liked,
			liked_at = EXCLUDED.liked_at,
			wishlisted = EXCLUDED.wishlisted,
			wishlisted_at = EXCLUDED.wishlisted_at,
			share_count = EXCLUDED.share_count,
			shared_at = EXCLUDED.shared_at
		RETURNING ` + strings.Join(engagementColumns, ", "))
	if err := repo.getContext(ctx, exec, &row, query); err != nil {
		return event.EngagementRecord{}, errors.Wrap(err, "saving engagement")
	}
	return row.record(), nil
}

func (repo *engagementRepository) DeleteEventEngagements(ctx context.Context, eventID string, exec ...core.DBExecutor) error {
	_, err := repo.execContext(ctx, exec, psql.Delete("engagements").Where(sq.Eq{"event_id": eventID}))
	return errors.Wrap(err, "deleting event engagements")
}
