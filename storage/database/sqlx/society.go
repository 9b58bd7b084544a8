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
	"github.com/trezcool/iems/core/society"
)

var societyColumns = []string{
	"id", "name", "head_ceo", "head_cfo", "head_coo", "max_heads", "description", "contact_email", "social_links", "logo_url",
	"event_ids", "created_by", "created_at", "updated_at",
}

type societyRow struct {
	ID           string              `db:"id"`
	Name         string              `db:"name"`
	HeadCEO      null.String         `db:"head_ceo"`
	HeadCFO      null.String         `db:"head_cfo"`
	HeadCOO      null.String         `db:"head_coo"`
	MaxHeads     int                 `db:"max_heads"`
	Description  string              `db:"description"`
	ContactEmail string              `db:"contact_email"`
	SocialLinks  society.SocialLinks `db:"social_links"`
	LogoURL      string              `db:"logo_url"`
	EventIDs     pq.StringArray      `db:"event_ids"`
	CreatedBy    string              `db:"created_by"`
	CreatedAt    time.Time           `db:"created_at"`
	UpdatedAt    time.Time           `db:"updated_at"`
}

func (r societyRow) society() society.Society {
	soc := society.Society{
		ID: r.ID,
		Heads: society.Heads{
			CEO: r.HeadCEO.Ptr(),
			CFO: r.HeadCFO.Ptr(),
			COO: r.HeadCOO.Ptr(),
		},
		Name:         r.Name,
		MaxHeads:     r.MaxHeads,
		Description:  r.Description,
		ContactEmail: r.ContactEmail,
		SocialLinks:  r.SocialLinks,
		LogoURL:      r.LogoURL,
		EventIDs:     []string(r.EventIDs),
		CreatedBy:    r.CreatedBy,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
	if soc.SocialLinks == nil {
		soc.SocialLinks = society.SocialLinks{}
	}
	if soc.EventIDs == nil {
		soc.EventIDs = []string{}
	}
	return soc
}

// stringsArg sends nil slices as empty arrays, the columns being NOT NULL.
func stringsArg(ss []string) pq.StringArray {
	if ss == nil {
		return pq.StringArray{}
	}
	return pq.StringArray(ss)
}

type societyRepository struct {
	repository
}

var _ society.Repository = (*societyRepository)(nil) // interface compliance check

func NewSocietyRepository(db *sqlx.DB) *societyRepository {
	return &societyRepository{repository{db: db}}
}

func (repo *societyRepository) SocietyExists(ctx context.Context, id string, exec ...core.DBExecutor) (bool, error) {
	var found bool
	if err := repo.getContext(ctx, exec, &found, exists(psql.Select("1").From("societies").Where(sq.Eq{"id": id}))); err != nil {
		return false, errors.Wrap(err, "checking society")
	}
	return found, nil
}

func (repo *societyRepository) CreateSociety(ctx context.Context, soc society.Society, exec ...core.DBExecutor) (society.Society, error) {
	if soc.SocialLinks == nil {
		soc.SocialLinks = society.SocialLinks{}
	}
	if soc.EventIDs == nil {
		soc.EventIDs = []string{}
	}
	query := psql.Insert("societies").Columns(societyColumns...).Values(
		soc.ID, soc.Name, null.StringFromPtr(soc.Heads.CEO), null.StringFromPtr(soc.Heads.CFO), null.StringFromPtr(soc.Heads.COO),
		soc.MaxHeads, soc.Description, soc.ContactEmail, soc.SocialLinks, soc.LogoURL, stringsArg(soc.EventIDs), soc.CreatedBy,
		soc.CreatedAt.UTC(), soc.UpdatedAt.UTC(),
	)
	if _, err := repo.execContext(ctx, exec, query); err != nil {
		if isUniqueViolation(err) {
			return society.Society{}, society.ErrDuplicateName
		}
		return society.Society{}, errors.Wrap(err, "inserting society")
	}
	return soc, nil
}

func (repo *societyRepository) get(ctx context.Context, id, suffix string, exec []core.DBExecutor) (society.Society, error) {
	var row societyRow
	query := psql.Select(societyColumns...).From("societies").Where(sq.Eq{"id": id})
	if suffix != "" {
		query = query.Suffix(suffix)
	}
	if err := repo.getContext(ctx, exec, &row, query); err != nil {
		return society.Society{}, trapNoRowsErr(err, society.ErrNotFound, "finding society")
	}
	return row.society(), nil
}

func (repo *societyRepository) GetSociety(ctx context.Context, id string, exec ...core.DBExecutor) (society.Society, error) {
	return repo.get(ctx, id, "", exec)
}

func (repo *societyRepository) GetSocietyForUpdate(ctx context.Context, id string, exec ...core.DBExecutor) (society.Society, error) {
	return repo.get(ctx, id, "FOR UPDATE", exec)
}

func (repo *societyRepository) QuerySocieties(ctx context.Context, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]society.Society, error) {
	var rows []societyRow
	query := psql.Select(societyColumns...).From("societies").OrderBy(orderBy(ordering, "name ASC")...)
	if err := repo.selectContext(ctx, exec, &rows, query); err != nil {
		return nil, errors.Wrap(err, "querying societies")
	}
	socs := make([]society.Society, 0, len(rows))
	for _, r := range rows {
		socs = append(socs, r.society())
	}
	return socs, nil
}

func (repo *societyRepository) UpdateSocietyDetails(ctx context.Context, soc society.Society, exec ...core.DBExecutor) (society.Society, error) {
	if soc.SocialLinks == nil {
		soc.SocialLinks = society.SocialLinks{}
	}
	var row societyRow
	query := psql.Update("societies").
		Set("description", soc.Description).
		Set("contact_email", soc.ContactEmail).
		Set("social_links", soc.SocialLinks).
		Set("logo_url", soc.LogoURL).
		Set("updated_at", soc.UpdatedAt.UTC()).
		Where(sq.Eq{"id": soc.ID}).
		Suffix("RETURNING " + strings.Join(societyColumns, ", "))
	if err := repo.getContext(ctx, exec, &row, query); err != nil {
		return society.Society{}, trapNoRowsErr(err, society.ErrNotFound, "updating society")
	}
	return row.society(), nil
}

func (repo *societyRepository) UpdateHeads(ctx context.Context, id string, heads society.Heads, updatedAt time.Time, exec ...core.DBExecutor) error {
	query := psql.Update("societies").
		Set("head_ceo", null.StringFromPtr(heads.CEO)).
		Set("head_cfo", null.StringFromPtr(heads.CFO)).
		Set("head_coo", null.StringFromPtr(heads.COO)).
		Set("updated_at", updatedAt.UTC()).
		Where(sq.Eq{"id": id})
	res, err := repo.execContext(ctx, exec, query)
	if err != nil {
		return errors.Wrap(err, "updating society heads")
	}
	return checkAffected(res, society.ErrNotFound, "updating society heads")
}

func (repo *societyRepository) AddEventID(ctx context.Context, id, eventID string, exec ...core.DBExecutor) error {
	query := psql.Update("societies").
		Set("event_ids", sq.Expr("CASE WHEN ? = ANY(event_ids) THEN event_ids ELSE array_append(event_ids, ?::text) END", eventID, eventID)).
		Where(sq.Eq{"id": id})
	res, err := repo.execContext(ctx, exec, query)
	if err != nil {
		return errors.Wrap(err, "adding society event")
	}
	return checkAffected(res, society.ErrNotFound, "adding society event")
}

func (repo *societyRepository) RemoveEventID(ctx context.Context, id, eventID string, exec ...core.DBExecutor) error {
	query := psql.Update("societies").
		Set("event_ids", sq.Expr("array_remove(event_ids, ?::text)", eventID)).
		Where(sq.Eq{"id": id})
	res, err := repo.execContext(ctx, exec, query)
	if err != nil {
		return errors.Wrap(err, "removing society event")
	}
	return checkAffected(res, society.ErrNotFound, "removing society event")
}

func (repo *societyRepository) DeleteSociety(ctx context.Context, id string, exec ...core.DBExecutor) error {
	res, err := repo.execContext(ctx, exec, psql.Delete("societies").Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting society")
	}
	return checkAffected(res, society.ErrNotFound, "deleting society")
}
