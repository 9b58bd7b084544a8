package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/iems/core"
	"github.com/trezcool/iems/core/event"
)

var eventColumns = []string{
	"id", "society_id", "title", "description", "type", "starts_at", "ends_at", "venue", "registration_link", "image_url", "status",
	"views", "likes", "wishlists", "shares", "tags", "sub_event_ids", "speaker_ids", "created_by", "created_at", "updated_at",
}

type eventRow struct {
	ID               string         `db:"id"`
	SocietyID        string         `db:"society_id"`
	Title            string         `db:"title"`
	Description      string         `db:"description"`
	Type             string         `db:"type"`
	StartsAt         time.Time      `db:"starts_at"`
	EndsAt           null.Time      `db:"ends_at"`
	Venue            event.Venue    `db:"venue"`
	RegistrationLink string         `db:"registration_link"`
	ImageURL         string         `db:"image_url"`
	Status           string         `db:"status"`
	Views            int            `db:"views"`
	Likes            int            `db:"likes"`
	Wishlists        int            `db:"wishlists"`
	Shares           int            `db:"shares"`
	Tags             pq.StringArray `db:"tags"`
	SubEventIDs      pq.StringArray `db:"sub_event_ids"`
	SpeakerIDs       pq.StringArray `db:"speaker_ids"`
	CreatedBy        string         `db:"created_by"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

func nonNilStrings(ss pq.StringArray) []string {
	if ss == nil {
		return []string{}
	}
	return []string(ss)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// nullTime is t in UTC, NULL when absent.
func nullTime(t *time.Time) null.Time {
	return null.TimeFromPtr(utcPtr(t))
}

func (r eventRow) event() event.Event {
	return event.Event{
		ID:               r.ID,
		SocietyID:        r.SocietyID,
		Title:            r.Title,
		Description:      r.Description,
		Type:             r.Type,
		StartsAt:         r.StartsAt.UTC(),
		EndsAt:           utcPtr(r.EndsAt.Ptr()),
		Venue:            r.Venue,
		RegistrationLink: r.RegistrationLink,
		ImageURL:         r.ImageURL,
		Status:           event.Status(r.Status),
		Metrics: event.Metrics{
			Views:     r.Views,
			Likes:     r.Likes,
			Wishlists: r.Wishlists,
			Shares:    r.Shares,
		},
		Tags:        nonNilStrings(r.Tags),
		SubEventIDs: nonNilStrings(r.SubEventIDs),
		SpeakerIDs:  nonNilStrings(r.SpeakerIDs),
		CreatedBy:   r.CreatedBy,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

type eventRepository struct {
	repository
}

var _ event.Repository = (*eventRepository)(nil) // interface compliance check

func NewEventRepository(db *sqlx.DB) *eventRepository {
	return &eventRepository{repository{db: db}}
}

func (repo *eventRepository) CreateEvent(ctx context.Context, ev event.Event, exec ...core.DBExecutor) (event.Event, error) {
	query := psql.Insert("events").Columns(eventColumns...).Values(
		ev.ID, ev.SocietyID, ev.Title, ev.Description, ev.Type, ev.StartsAt.UTC(), nullTime(ev.EndsAt), ev.Venue,
		ev.RegistrationLink, ev.ImageURL, string(ev.Status),
		ev.Metrics.Views, ev.Metrics.Likes, ev.Metrics.Wishlists, ev.Metrics.Shares,
		stringsArg(ev.Tags), stringsArg(ev.SubEventIDs), stringsArg(ev.SpeakerIDs),
		ev.CreatedBy, ev.CreatedAt.UTC(), ev.UpdatedAt.UTC(),
	)
	if _, err := repo.execContext(ctx, exec, query); err != nil {
		return event.Event{}, errors.Wrap(err, "inserting event")
	}
	return ev.Clone(), nil
}

func (repo *eventRepository) GetEvent(ctx context.Context, id string, exec ...core.DBExecutor) (event.Event, error) {
	var row eventRow
	if err := repo.getContext(ctx, exec, &row, psql.Select(eventColumns...).From("events").Where(sq.Eq{"id": id})); err != nil {
		return event.Event{}, trapNoRowsErr(err, event.ErrNotFound, "finding event")
	}
	return row.event(), nil
}

func (repo *eventRepository) QueryEvents(ctx context.Context, filter *event.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]event.Event, error) {
	query := psql.Select(eventColumns...).From("events")
	if filter != nil {
		if filter.SocietyID != "" {
			query = query.Where(sq.Eq{"society_id": filter.SocietyID})
		}
		if filter.Status != "" {
			query = query.Where(sq.Eq{"status": filter.Status})
		}
		if filter.Tag != "" {
			query = query.Where("? = ANY(tags)", filter.Tag)
		}
		if !filter.From.IsZero() {
			query = query.Where(sq.GtOrEq{"starts_at": filter.From.UTC()})
		}
		if !filter.To.IsZero() {
			query = query.Where(sq.Lt{"starts_at": filter.To.UTC()})
		}
		if !filter.Visibility.All {
			notDraft := sq.NotEq{"status": string(event.StatusDraft)}
			if filter.Visibility.SocietyID != "" {
				query = query.Where(sq.Or{notDraft, sq.Eq{"society_id": filter.Visibility.SocietyID}})
			} else {
				query = query.Where(notDraft)
			}
		}
	}
	query = query.OrderBy(orderBy(ordering, "starts_at ASC")...)

	var rows []eventRow
	if err := repo.selectContext(ctx, exec, &rows, query); err != nil {
		return nil, errors.Wrap(err, "querying events")
	}
	events := make([]event.Event, 0, len(rows))
	for _, r := range rows {
		events = append(events, r.event())
	}
	return events, nil
}

// UpdateEvent writes the columns of the non-nil changes plus updated_at, nothing else.
func (repo *eventRepository) UpdateEvent(ctx context.Context, id string, changes event.Changes, exec ...core.DBExecutor) error {
	query := psql.Update("events")
	if changes.Title != nil {
		query = query.Set("title", *changes.Title)
	}
	if changes.Description != nil {
		query = query.Set("description", *changes.Description)
	}
	if changes.Type != nil {
		query = query.Set("type", *changes.Type)
	}
	if changes.StartsAt != nil {
		query = query.Set("starts_at", changes.StartsAt.UTC())
	}
	if changes.EndsAt != nil {
		query = query.Set("ends_at", changes.EndsAt.UTC())
	}
	if changes.Venue != nil {
		query = query.Set("venue", *changes.Venue)
	}
	if changes.RegistrationLink != nil {
		query = query.Set("registration_link", *changes.RegistrationLink)
	}
	if changes.ImageURL != nil {
		query = query.Set("image_url", *changes.ImageURL)
	}
	if changes.Status != nil {
		query = query.Set("status", string(*changes.Status))
	}
	if changes.Tags != nil {
		query = query.Set("tags", stringsArg(*changes.Tags))
	}
	if changes.SpeakerIDs != nil {
		query = query.Set("speaker_ids", stringsArg(*changes.SpeakerIDs))
	}
	query = query.Set("updated_at", changes.UpdatedAt.UTC()).Where(sq.Eq{"id": id})

	res, err := repo.execContext(ctx, exec, query)
	if err != nil {
		return errors.Wrap(err, "updating event")
	}
	return checkAffected(res, event.ErrNotFound, "updating event")
}

func (repo *eventRepository) IncrementMetrics(ctx context.Context, id string, delta event.Metrics, exec ...core.DBExecutor) error {
	query := psql.Update("events").
		Set("views", sq.Expr("GREATEST(views + ?, 0)", delta.Views)).
		Set("likes", sq.Expr("GREATEST(likes + ?, 0)", delta.Likes)).
		Set("wishlists", sq.Expr("GREATEST(wishlists + ?, 0)", delta.Wishlists)).
		Set("shares", sq.Expr("GREATEST(shares + ?, 0)", delta.Shares)).
		Where(sq.Eq{"id": id})
	res, err := repo.execContext(ctx, exec, query)
	if err != nil {
		return errors.Wrap(err, "incrementing event metrics")
	}
	return checkAffected(res, event.ErrNotFound, "incrementing event metrics")
}

func (repo *eventRepository) AddSubEventID(ctx context.Context, id, moduleID string, exec ...core.DBExecutor) error {
	query := psql.Update("events").
		Set("sub_event_ids", sq.Expr("CASE WHEN ? = ANY(sub_event_ids) THEN sub_event_ids ELSE array_append(sub_event_ids, ?::text) END", moduleID, moduleID)).
		Where(sq.Eq{"id": id})
	res, err := repo.execContext(ctx, exec, query)
	if err != nil {
		return errors.Wrap(err, "adding sub-event")
	}
	return checkAffected(res, event.ErrNotFound, "adding sub-event")
}

func (repo *eventRepository) RemoveSubEventID(ctx context.Context, id, moduleID string, exec ...core.DBExecutor) error {
	query := psql.Update("events").
		Set("sub_event_ids", sq.Expr("array_remove(sub_event_ids, ?::text)", moduleID)).
		Where(sq.Eq{"id": id})
	res, err := repo.execContext(ctx, exec, query)
	if err != nil {
		return errors.Wrap(err, "removing sub-event")
	}
	return checkAffected(res, event.ErrNotFound, "removing sub-event")
}

func (repo *eventRepository) ConcludeEvents(ctx context.Context, before, updatedAt time.Time, exec ...core.DBExecutor) (int64, error) {
	query := psql.Update("events").
		Set("status", string(event.StatusConcluded)).
		Set("updated_at", updatedAt.UTC()).
		Where(sq.Eq{"status": string(event.StatusPublished)}).
		Where(sq.Lt{"COALESCE(ends_at, starts_at)": before.UTC()})
	res, err := repo.execContext(ctx, exec, query)
	if err != nil {
		return 0, errors.Wrap(err, "concluding events")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "concluding events")
	}
	return n, nil
}

func (repo *eventRepository) CountEventsByStatus(ctx context.Context, exec ...core.DBExecutor) (map[event.Status]int, error) {
	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	query := psql.Select("status", "COUNT(*) AS count").From("events").GroupBy("status")
	if err := repo.selectContext(ctx, exec, &rows, query); err != nil {
		return nil, errors.Wrap(err, "counting events")
	}
	counts := make(map[event.Status]int, len(rows))
	for _, r := range rows {
		counts[event.Status(r.Status)] = r.Count
	}
	return counts, nil
}

func (repo *eventRepository) DeleteEvent(ctx context.Context, id string, exec ...core.DBExecutor) error {
	res, err := repo.execContext(ctx, exec, psql.Delete("events").Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting event")
	}
	return checkAffected(res, event.ErrNotFound, "deleting event")
}
