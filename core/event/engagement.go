package event

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/iems/core"
	"github.com/trezcool/iems/core/privilege"
)

// EngagementRecord is the interaction history of one user with one event.
// There is at most one record per (event, user) pair.
type EngagementRecord struct {
	EventID      string     `json:"event_id"`
	UserID       string     `json:"user_id"`
	HasViewed    bool       `json:"has_viewed"`
	ViewCount    int        `json:"view_count"`
	ViewedAt     *time.Time `json:"viewed_at"`      // first view, UTC
	LastViewedAt *time.Time `json:"last_viewed_at"` // UTC
	Liked        bool       `json:"liked"`
	LikedAt      *time.Time `json:"liked_at"`
	Wishlisted   bool       `json:"wishlisted"`
	WishlistedAt *time.Time `json:"wishlisted_at"`
	ShareCount   int        `json:"share_count"`
	SharedAt     *time.Time `json:"shared_at"`
}

// RecordView counts a view of a published or concluded event by a signed-in user who may not edit it.
// Every view increments the event's view counter and the viewer's view count; the record is created on the first one.
// It reports whether the view was counted.
func (svc *Service) RecordView(ctx context.Context, id string, actor privilege.Actor) (bool, error) {
	if actor.IsAnonymous() {
		return false, nil
	}

	counted := false
	err := svc.tx.WithinTx(ctx, func(ctx context.Context, exec core.DBExecutor) error {
		ev, err := svc.repo.GetEvent(ctx, id, exec)
		if err != nil {
			return err
		}
		if ev.Status == StatusDraft || privilege.CanEdit(actor, ev.SocietyID) {
			return nil
		}
		if _, err = svc.engagements.RecordView(ctx, id, actor.UserID, core.NowFunc(), exec); err != nil {
			return errors.Wrap(err, "recording view")
		}
		if err = svc.repo.IncrementMetrics(ctx, id, Metrics{Views: 1}, exec); err != nil {
			return errors.Wrap(err, "incrementing views")
		}
		counted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return counted, nil
}

// ToggleLike likes or unlikes the event on behalf of the actor.
func (svc *Service) ToggleLike(ctx context.Context, id string, actor privilege.Actor) (EngagementRecord, error) {
	return svc.engage(ctx, id, actor, func(rec *EngagementRecord, now time.Time) Metrics {
		rec.Liked = !rec.Liked
		if rec.Liked {
			rec.LikedAt = &now
			return Metrics{Likes: 1}
		}
		rec.LikedAt = nil
		return Metrics{Likes: -1}
	})
}

// ToggleWishlist adds the event to, or removes it from, the actor's wishlist.
func (svc *Service) ToggleWishlist(ctx context.Context, id string, actor privilege.Actor) (EngagementRecord, error) {
	return svc.engage(ctx, id, actor, func(rec *EngagementRecord, now time.Time) Metrics {
		rec.Wishlisted = !rec.Wishlisted
		if rec.Wishlisted {
			rec.WishlistedAt = &now
			return Metrics{Wishlists: 1}
		}
		rec.WishlistedAt = nil
		return Metrics{Wishlists: -1}
	})
}

// RecordShare counts a share of the event by the actor.
func (svc *Service) RecordShare(ctx context.Context, id string, actor privilege.Actor) (EngagementRecord, error) {
	return svc.engage(ctx, id, actor, func(rec *EngagementRecord, now time.Time) Metrics {
		rec.ShareCount++
		rec.SharedAt = &now
		return Metrics{Shares: 1}
	})
}

func (svc *Service) engage(ctx context.Context, id string, actor privilege.Actor, apply func(*EngagementRecord, time.Time) Metrics) (EngagementRecord, error) {
	if actor.IsAnonymous() {
		return EngagementRecord{}, core.ErrPermissionDenied
	}

	var rec EngagementRecord
	err := svc.tx.WithinTx(ctx, func(ctx context.Context, exec core.DBExecutor) error {
		ev, err := svc.repo.GetEvent(ctx, id, exec)
		if err != nil {
			return err
		}
		if ev.Status == StatusDraft && !privilege.CanEdit(actor, ev.SocietyID) {
			return ErrNotFound
		}

		rec, err = svc.engagements.GetEngagement(ctx, id, actor.UserID, exec)
		if err != nil {
			if !core.IsNotFound(err) {
				return errors.Wrap(err, "finding engagement")
			}
			rec = EngagementRecord{EventID: id, UserID: actor.UserID}
		}

		delta := apply(&rec, core.NowFunc())
		if rec, err = svc.engagements.SaveEngagement(ctx, rec, exec); err != nil {
			return errors.Wrap(err, "saving engagement")
		}
		return errors.Wrap(svc.repo.IncrementMetrics(ctx, id, delta, exec), "updating metrics")
	})
	if err != nil {
		return EngagementRecord{}, err
	}
	return rec, nil
}

// GetEngagement returns the actor's record for the event; a user who never interacted gets an empty one.
func (svc *Service) GetEngagement(ctx context.Context, id string, actor privilege.Actor) (EngagementRecord, error) {
	if actor.IsAnonymous() {
		return EngagementRecord{}, core.ErrPermissionDenied
	}
	rec, err := svc.engagements.GetEngagement(ctx, id, actor.UserID)
	if err != nil {
		if core.IsNotFound(err) {
			return EngagementRecord{EventID: id, UserID: actor.UserID}, nil
		}
		return EngagementRecord{}, err
	}
	return rec, nil
}
