package inmemdb

import (
	"context"
	"time"

	"github.com/trezcool/iems/core"
	"github.com/trezcool/iems/core/society"
)

type societyRepository struct {
	db *DB
}

var _ society.Repository = (*societyRepository)(nil) // interface compliance check

func NewSocietyRepository(db *DB) *societyRepository {
	return &societyRepository{db: db}
}

func cloneHeads(h society.Heads) society.Heads {
	var c society.Heads
	for _, role := range society.Roles {
		if id := h.Get(role); id != nil {
			v := *id
			c.Set(role, &v)
		}
	}
	return c
}

func cloneSociety(soc society.Society) society.Society {
	c := soc.Clone()
	c.Heads = cloneHeads(soc.Heads)
	return c
}

func (repo *societyRepository) SocietyExists(_ context.Context, id string, exec ...core.DBExecutor) (bool, error) {
	defer repo.db.acquire(exec)()
	_, ok := repo.db.t.societies[id]
	return ok, nil
}

func (repo *societyRepository) CreateSociety(_ context.Context, soc society.Society, exec ...core.DBExecutor) (society.Society, error) {
	defer repo.db.acquire(exec)()

	if _, ok := repo.db.t.societies[soc.ID]; ok {
		return society.Society{}, society.ErrDuplicateName
	}
	repo.db.t.societies[soc.ID] = cloneSociety(soc)
	return cloneSociety(soc), nil
}

func (repo *societyRepository) get(id string) (society.Society, error) {
	soc, ok := repo.db.t.societies[id]
	if !ok {
		return society.Society{}, society.ErrNotFound
	}
	return cloneSociety(soc), nil
}

func (repo *societyRepository) GetSociety(_ context.Context, id string, exec ...core.DBExecutor) (society.Society, error) {
	defer repo.db.acquire(exec)()
	return repo.get(id)
}

// GetSocietyForUpdate needs no row lock: transactions already hold the store lock.
func (repo *societyRepository) GetSocietyForUpdate(ctx context.Context, id string, exec ...core.DBExecutor) (society.Society, error) {
	return repo.GetSociety(ctx, id, exec...)
}

func (repo *societyRepository) QuerySocieties(_ context.Context, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]society.Society, error) {
	defer repo.db.acquire(exec)()

	socs := make([]society.Society, 0, len(repo.db.t.societies))
	for _, soc := range repo.db.t.societies {
		socs = append(socs, cloneSociety(soc))
	}
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "name", Ascending: true}}
	}
	orderBy(len(socs), func(i, j int) { socs[i], socs[j] = socs[j], socs[i] }, ordering, func(i, j int, field string) int {
		switch field {
		case "name":
			return compareStrings(socs[i].Name, socs[j].Name)
		case "created_at":
			return compareTimes(socs[i].CreatedAt, socs[j].CreatedAt)
		}
		return 0
	})
	return socs, nil
}

func (repo *societyRepository) update(id string, fn func(soc *society.Society)) error {
	soc, err := repo.get(id)
	if err != nil {
		return err
	}
	fn(&soc)
	repo.db.t.societies[id] = soc
	return nil
}

func (repo *societyRepository) UpdateSocietyDetails(_ context.Context, soc society.Society, exec ...core.DBExecutor) (society.Society, error) {
	defer repo.db.acquire(exec)()

	err := repo.update(soc.ID, func(s *society.Society) {
		s.Description = soc.Description
		s.ContactEmail = soc.ContactEmail
		s.SocialLinks = soc.Clone().SocialLinks
		s.LogoURL = soc.LogoURL
		s.UpdatedAt = soc.UpdatedAt
	})
	if err != nil {
		return society.Society{}, err
	}
	return repo.get(soc.ID)
}

func (repo *societyRepository) UpdateHeads(_ context.Context, id string, heads society.Heads, updatedAt time.Time, exec ...core.DBExecutor) error {
	defer repo.db.acquire(exec)()

	return repo.update(id, func(s *society.Society) {
		s.Heads = cloneHeads(heads)
		s.UpdatedAt = updatedAt
	})
}

func (repo *societyRepository) AddEventID(_ context.Context, id, eventID string, exec ...core.DBExecutor) error {
	defer repo.db.acquire(exec)()

	return repo.update(id, func(s *society.Society) {
		for _, evID := range s.EventIDs {
			if evID == eventID {
				return
			}
		}
		s.EventIDs = append(s.EventIDs, eventID)
	})
}

func (repo *societyRepository) RemoveEventID(_ context.Context, id, eventID string, exec ...core.DBExecutor) error {
	defer repo.db.acquire(exec)()

	return repo.update(id, func(s *society.Society) {
		kept := make([]string, 0, len(s.EventIDs))
		for _, evID := range s.EventIDs {
			if evID != eventID {
				kept = append(kept, evID)
			}
		}
		s.EventIDs = kept
	})
}

func (repo *societyRepository) DeleteSociety(_ context.Context, id string, exec ...core.DBExecutor) error {
	defer repo.db.acquire(exec)()

	if _, ok := repo.db.t.societies[id]; !ok {
		return society.ErrNotFound
	}
	delete(repo.db.t.societies, id)
	return nil
}
