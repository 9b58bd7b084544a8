package sqlxrepos

import (
	"context"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/iems/core"
	"github.com/trezcool/iems/core/event"
)

var moduleColumns = []string{
	"id", "event_id", "position", "title", "description", "starts_at", "ends_at", "venue", "price", "document", "speaker_ids",
	"created_at", "updated_at",
}

type moduleRow struct {
	ID          string          `db:"id"`
	EventID     string          `db:"event_id"`
	Position    int             `db:"position"`
	Title       string          `db:"title"`
	Description string          `db:"description"`
	StartsAt    null.Time       `db:"starts_at"`
	EndsAt      null.Time       `db:"ends_at"`
	Venue       event.Venue     `db:"venue"`
	Price       float64         `db:"price"`
	Document    *event.Document `db:"document"`
	SpeakerIDs  pq.StringArray  `db:"speaker_ids"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

func (r moduleRow) module() event.Module {
	return event.Module{
		ID:          r.ID,
		EventID:     r.EventID,
		Order:       r.Position,
		Title:       r.Title,
		Description: r.Description,
		StartsAt:    utcPtr(r.StartsAt.Ptr()),
		EndsAt:      utcPtr(r.EndsAt.Ptr()),
		Venue:       r.Venue,
		Price:       r.Price,
		Document:    r.Document,
		SpeakerIDs:  nonNilStrings(r.SpeakerIDs),
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

type moduleRepository struct {
	repository
}

var _ event.ModuleRepository = (*moduleRepository)(nil) // interface compliance check

func NewModuleRepository(db *sqlx.DB) *moduleRepository {
	return &moduleRepository{repository{db: db}}
}

func (repo *moduleRepository) CreateModule(ctx context.Context, mod event.Module, exec ...core.DBExecutor) (event.Module, error) {
	query := psql.Insert("modules").Columns(moduleColumns...).Values(
		mod.ID, mod.EventID, mod.Order, mod.Title, mod.Description, nullTime(mod.StartsAt),
		nullTime(mod.EndsAt), mod.Venue, mod.Price, mod.Document, stringsArg(mod.SpeakerIDs),
		mod.CreatedAt.UTC(), mod.UpdatedAt.UTC(),
	)
	if _, err := repo.execContext(ctx, exec, query); err != nil {
		return event.Module{}, errors.Wrap(err, "inserting module")
	}
	return mod.Clone(), nil
}

func (repo *moduleRepository) GetModule(ctx context.Context, id string, exec ...core.DBExecutor) (event.Module, error) {
	var row moduleRow
	if err := repo.getContext(ctx, exec, &row, psql.Select(moduleColumns...).From("modules").Where(sq.Eq{"id": id})); err != nil {
		return event.Module{}, trapNoRowsErr(err, event.ErrModuleNotFound, "finding module")
	}
	return row.module(), nil
}

func (repo *moduleRepository) QueryModules(ctx context.Context, eventID string, exec ...core.DBExecutor) ([]event.Module, error) {
	var rows []moduleRow
	query := psql.Select(moduleColumns...).From("modules").
		Where(sq.Eq{"event_id": eventID}).
		OrderBy("position ASC", "created_at ASC")
	if err := repo.selectContext(ctx, exec, &rows, query); err != nil {
		return nil, errors.Wrap(err, "querying modules")
	}
	mods := make([]event.Module, 0, len(rows))
	for _, r := range rows {
		mods = append(mods, r.module())
	}
	return mods, nil
}

func (repo *moduleRepository) UpdateModule(ctx context.Context, mod event.Module, exec ...core.DBExecutor) (event.Module, error) {
	var row moduleRow
	query := psql.Update("modules").
		Set("position", mod.Order).
		Set("title", mod.Title).
		Set("description", mod.Description).
		Set("starts_at", nullTime(mod.StartsAt)).
		Set("ends_at", nullTime(mod.EndsAt)).
		Set("venue", mod.Venue).
		Set("price", mod.Price).
		Set("document", mod.Document).
		Set("speaker_ids", stringsArg(mod.SpeakerIDs)).
		Set("updated_at", mod.UpdatedAt.UTC()).
		Where(sq.Eq{"id": mod.ID}).
		Suffix("RETURNING " + strings.Join(moduleColumns, ", "))
	if err := repo.getContext(ctx, exec, &row, query); err != nil {
		return event.Module{}, trapNoRowsErr(err, event.ErrModuleNotFound, "updating module")
	}
	return row.module(), nil
}

func (repo *moduleRepository) DeleteModule(ctx context.Context, id string, exec ...core.DBExecutor) error {
	res, err := repo.execContext(ctx, exec, psql.Delete("modules").Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting module")
	}
	return checkAffected(res, event.ErrModuleNotFound, "deleting module")
}

func (repo *moduleRepository) DeleteEventModules(ctx context.Context, eventID string, exec ...core.DBExecutor) error {
	_, err := repo.execContext(ctx, exec, psql.Delete("modules").Where(sq.Eq{"event_id": eventID}))
	return errors.Wrap(err, "deleting event modules")
}
