package sqlxrepos

import (
	"context"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/iems/core"
	"github.com/trezcool/iems/core/event"
)

var speakerColumns = []string{
	"id", "name", "designation", "organization", "bio", "photo_url", "linkedin", "created_by", "created_at", "updated_at",
}

type speakerRow struct {
	ID           string    `db:"id"`
	Name         string    `db:"name"`
	Designation  string    `db:"designation"`
	Organization string    `db:"organization"`
	Bio          string    `db:"bio"`
	PhotoURL     string    `db:"photo_url"`
	LinkedIn     string    `db:"linkedin"`
	CreatedBy    string    `db:"created_by"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r speakerRow) speaker() event.Speaker {
	spk := event.Speaker(r)
	spk.CreatedAt = r.CreatedAt.UTC()
	spk.UpdatedAt = r.UpdatedAt.UTC()
	return spk
}

type speakerRepository struct {
	repository
}

var _ event.SpeakerRepository = (*speakerRepository)(nil) // interface compliance check

func NewSpeakerRepository(db *sqlx.DB) *speakerRepository {
	return &speakerRepository{repository{db: db}}
}

func (repo *speakerRepository) CreateSpeaker(ctx context.Context, spk event.Speaker, exec ...core.DBExecutor) (event.Speaker, error) {
	query := psql.Insert("speakers").Columns(speakerColumns...).Values(
		spk.ID, spk.Name, spk.Designation, spk.Organization, spk.Bio, spk.PhotoURL, spk.LinkedIn, spk.CreatedBy,
		spk.CreatedAt.UTC(), spk.UpdatedAt.UTC(),
	)
	if _, err := repo.execContext(ctx, exec, query); err != nil {
		return event.Speaker{}, errors.Wrap(err, "inserting speaker")
	}
	return spk, nil
}

func (repo *speakerRepository) GetSpeaker(ctx context.Context, id string, exec ...core.DBExecutor) (event.Speaker, error) {
	var row speakerRow
	if err := repo.getContext(ctx, exec, &row, psql.Select(speakerColumns...).From("speakers").Where(sq.Eq{"id": id})); err != nil {
		return event.Speaker{}, trapNoRowsErr(err, event.ErrSpeakerNotFound, "finding speaker")
	}
	return row.speaker(), nil
}

// QuerySpeakers returns the speakers in the order of ids, skipping unknown ones, or every speaker by name when ids is empty.
func (repo *speakerRepository) QuerySpeakers(ctx context.Context, ids []string, exec ...core.DBExecutor) ([]event.Speaker, error) {
	query := psql.Select(speakerColumns...).From("speakers")
	if len(ids) == 0 {
		query = query.OrderBy("name ASC")
	} else {
		query = query.Where(sq.Eq{"id": ids})
	}
	var rows []speakerRow
	if err := repo.selectContext(ctx, exec, &rows, query); err != nil {
		return nil, errors.Wrap(err, "querying speakers")
	}

	speakers := make([]event.Speaker, 0, len(rows))
	if len(ids) == 0 {
		for _, r := range rows {
			speakers = append(speakers, r.speaker())
		}
		return speakers, nil
	}
	byID := make(map[string]event.Speaker, len(rows))
	for _, r := range rows {
		byID[r.ID] = r.speaker()
	}
	for _, id := range ids {
		if spk, ok := byID[id]; ok {
			speakers = append(speakers, spk)
		}
	}
	return speakers, nil
}

func (repo *speakerRepository) UpdateSpeaker(ctx context.Context, spk event.Speaker, exec ...core.DBExecutor) (event.Speaker, error) {
	var row speakerRow
	query := psql.Update("speakers").
		Set("name", spk.Name).
		Set("designation", spk.Designation).
		Set("organization", spk.Organization).
		Set("bio", spk.Bio).
		Set("photo_url", spk.PhotoURL).
		Set("linkedin", spk.LinkedIn).
		Set("updated_at", spk.UpdatedAt.UTC()).
		Where(sq.Eq{"id": spk.ID}).
		Suffix("RETURNING " + strings.Join(speakerColumns, ", "))
	if err := repo.getContext(ctx, exec, &row, query); err != nil {
		return event.Speaker{}, trapNoRowsErr(err, event.ErrSpeakerNotFound, "updating speaker")
	}
	return row.speaker(), nil
}

func (repo *speakerRepository) DeleteSpeaker(ctx context.Context, id string, exec ...core.DBExecutor) error {
	res, err := repo.execContext(ctx, exec, psql.Delete("speakers").Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting speaker")
	}
	return checkAffected(res, event.ErrSpeakerNotFound, "deleting speaker")
}
