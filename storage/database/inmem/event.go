package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/iems/core"
	"github.com/trezcool/iems/core/event"
)

type eventRepository struct {
	db *DB
}

var _ event.Repository = (*eventRepository)(nil) // interface compliance check

func NewEventRepository(db *DB) *eventRepository {
	return &eventRepository{db: db}
}

func (repo *eventRepository) CreateEvent(_ context.Context, ev event.Event, exec ...core.DBExecutor) (event.Event, error) {
	defer repo.db.acquire(exec)()

	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	repo.db.t.events[ev.ID] = ev.Clone()
	return ev.Clone(), nil
}

func (repo *eventRepository) get(id string) (event.Event, error) {
	ev, ok := repo.db.t.events[id]
	if !ok {
		return event.Event{}, event.ErrNotFound
	}
	return ev.Clone(), nil
}

func (repo *eventRepository) GetEvent(_ context.Context, id string, exec ...core.DBExecutor) (event.Event, error) {
	defer repo.db.acquire(exec)()
	return repo.get(id)
}

func (repo *eventRepository) QueryEvents(_ context.Context, filter *event.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]event.Event, error) {
	defer repo.db.acquire(exec)()

	if filter == nil {
		filter = &event.QueryFilter{Visibility: event.Visibility{All: true}}
	}
	events := make([]event.Event, 0)
	for _, ev := range repo.db.t.events {
		if filter.Matches(ev) {
			events = append(events, ev.Clone())
		}
	}
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "starts_at", Ascending: true}}
	}
	orderBy(len(events), func(i, j int) { events[i], events[j] = events[j], events[i] }, ordering, func(i, j int, field string) int {
		switch field {
		case "starts_at":
			return compareTimes(events[i].StartsAt, events[j].StartsAt)
		case "created_at":
			return compareTimes(events[i].CreatedAt, events[j].CreatedAt)
		case "title":
			return compareStrings(events[i].Title, events[j].Title)
		}
		return 0
	})
	return events, nil
}

func (repo *eventRepository) update(id string, fn func(ev event.Event) event.Event) error {
	ev, err := repo.get(id)
	if err != nil {
		return err
	}
	repo.db.t.events[id] = fn(ev).Clone()
	return nil
}

func (repo *eventRepository) UpdateEvent(_ context.Context, id string, changes event.Changes, exec ...core.DBExecutor) error {
	defer repo.db.acquire(exec)()
	return repo.update(id, changes.Apply)
}

func floorZero(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

func (repo *eventRepository) IncrementMetrics(_ context.Context, id string, delta event.Metrics, exec ...core.DBExecutor) error {
	defer repo.db.acquire(exec)()

	return repo.update(id, func(ev event.Event) event.Event {
		ev.Metrics.Views = floorZero(ev.Metrics.Views + delta.Views)
		ev.Metrics.Likes = floorZero(ev.Metrics.Likes + delta.Likes)
		ev.Metrics.Wishlists = floorZero(ev.Metrics.Wishlists + delta.Wishlists)
		ev.Metrics.Shares = floorZero(ev.Metrics.Shares + delta.Shares)
		return ev
	})
}

func (repo *eventRepository) AddSubEventID(_ context.Context, id, moduleID string, exec ...core.DBExecutor) error {
	defer repo.db.acquire(exec)()

	return repo.update(id, func(ev event.Event) event.Event {
		for _, m := range ev.SubEventIDs {
			if m == moduleID {
				return ev
			}
		}
		ev.SubEventIDs = append(ev.SubEventIDs, moduleID)
		return ev
	})
}

func (repo *eventRepository) RemoveSubEventID(_ context.Context, id, moduleID string, exec ...core.DBExecutor) error {
	defer repo.db.acquire(exec)()

	return repo.update(id, func(ev event.Event) event.Event {
		kept := make([]string, 0, len(ev.SubEventIDs))
		for _, m := range ev.SubEventIDs {
			if m != moduleID {
				kept = append(kept, m)
			}
		}
		ev.SubEventIDs = kept
		return ev
	})
}

func (repo *eventRepository) ConcludeEvents(_ context.Context, before, updatedAt time.Time, exec ...core.DBExecutor) (int64, error) {
	defer repo.db.acquire(exec)()

	var n int64
	for id, ev := range repo.db.t.events {
		if ev.Status != event.StatusPublished {
			continue
		}
		end := ev.StartsAt
		if ev.EndsAt != nil {
			end = *ev.EndsAt
		}
		if !end.Before(before) {
			continue
		}
		ev = ev.Clone()
		ev.Status = event.StatusConcluded
		ev.UpdatedAt = updatedAt
		repo.db.t.events[id] = ev
		n++
	}
	return n, nil
}

func (repo *eventRepository) CountEventsByStatus(_ context.Context, exec ...core.DBExecutor) (map[event.Status]int, error) {
	defer repo.db.acquire(exec)()

	counts := make(map[event.Status]int)
	for _, ev := range repo.db.t.events {
		counts[ev.Status]++
	}
	return counts, nil
}

func (repo *eventRepository) DeleteEvent(_ context.Context, id string, exec ...core.DBExecutor) error {
	defer repo.db.acquire(exec)()

	if _, ok := repo.db.t.events[id]; !ok {
		return event.ErrNotFound
	}
	delete(repo.db.t.events, id)
	return nil
}

// Modules

type moduleRepository struct {
	db *DB
}

var _ event.ModuleRepository = (*moduleRepository)(nil) // interface compliance check

func NewModuleRepository(db *DB) *moduleRepository {
	return &moduleRepository{db: db}
}

func (repo *moduleRepository) CreateModule(_ context.Context, mod event.Module, exec ...core.DBExecutor) (event.Module, error) {
	defer repo.db.acquire(exec)()

	if mod.ID == "" {
		mod.ID = uuid.New().String()
	}
	repo.db.t.modules[mod.ID] = mod.Clone()
	return mod.Clone(), nil
}

func (repo *moduleRepository) GetModule(_ context.Context, id string, exec ...core.DBExecutor) (event.Module, error) {
	defer repo.db.acquire(exec)()

	mod, ok := repo.db.t.modules[id]
	if !ok {
		return event.Module{}, event.ErrModuleNotFound
	}
	return mod.Clone(), nil
}

func (repo *moduleRepository) QueryModules(_ context.Context, eventID string, exec ...core.DBExecutor) ([]event.Module, error) {
	defer repo.db.acquire(exec)()

	mods := make([]event.Module, 0)
	for _, mod := range repo.db.t.modules {
		if mod.EventID == eventID {
			mods = append(mods, mod.Clone())
		}
	}
	sort.SliceStable(mods, func(i, j int) bool {
		if mods[i].Order != mods[j].Order {
			return mods[i].Order < mods[j].Order
		}
		return mods[i].CreatedAt.Before(mods[j].CreatedAt)
	})
	return mods, nil
}

func (repo *moduleRepository) UpdateModule(_ context.Context, mod event.Module, exec ...core.DBExecutor) (event.Module, error) {
	defer repo.db.acquire(exec)()

	orig, ok := repo.db.t.modules[mod.ID]
	if !ok {
		return event.Module{}, event.ErrModuleNotFound
	}
	mod.EventID = orig.EventID
	mod.CreatedAt = orig.CreatedAt
	repo.db.t.modules[mod.ID] = mod.Clone()
	return mod.Clone(), nil
}

func (repo *moduleRepository) DeleteModule(_ context.Context, id string, exec ...core.DBExecutor) error {
	defer repo.db.acquire(exec)()

	if _, ok := repo.db.t.modules[id]; !ok {
		return event.ErrModuleNotFound
	}
	delete(repo.db.t.modules, id)
	return nil
}

func (repo *moduleRepository) DeleteEventModules(_ context.Context, eventID string, exec ...core.DBExecutor) error {
	defer repo.db.acquire(exec)()

	for id, mod := range repo.db.t.modules {
		if mod.EventID == eventID {
			delete(repo.db.t.modules, id)
		}
	}
	return nil
}

// Speakers

type speakerRepository struct {
	db *DB
}

var _ event.SpeakerRepository = (*speakerRepository)(nil) // interface compliance check

func NewSpeakerRepository(db *DB) *speakerRepository {
	return &speakerRepository{db: db}
}

func (repo *speakerRepository) CreateSpeaker(_ context.Context, spk event.Speaker, exec ...core.DBExecutor) (event.Speaker, error) {
	defer repo.db.acquire(exec)()

	if spk.ID == "" {
		spk.ID = uuid.New().String()
	}
	repo.db.t.speakers[spk.ID] = spk
	return spk, nil
}

func (repo *speakerRepository) GetSpeaker(_ context.Context, id string, exec ...core.DBExecutor) (event.Speaker, error) {
	defer repo.db.acquire(exec)()

	spk, ok := repo.db.t.speakers[id]
	if !ok {
		return event.Speaker{}, event.ErrSpeakerNotFound
	}
	return spk, nil
}

func (repo *speakerRepository) QuerySpeakers(_ context.Context, ids []string, exec ...core.DBExecutor) ([]event.Speaker, error) {
	defer repo.db.acquire(exec)()

	speakers := make([]event.Speaker, 0)
	if len(ids) > 0 {
		for _, id := range ids {
			if spk, ok := repo.db.t.speakers[id]; ok {
				speakers = append(speakers, spk)
			}
		}
		return speakers, nil
	}
	for _, spk := range repo.db.t.speakers {
		speakers = append(speakers, spk)
	}
	sort.SliceStable(speakers, func(i, j int) bool {
		return compareStrings(speakers[i].Name, speakers[j].Name) < 0
	})
	return speakers, nil
}

func (repo *speakerRepository) UpdateSpeaker(_ context.Context, spk event.Speaker, exec ...core.DBExecutor) (event.Speaker, error) {
	defer repo.db.acquire(exec)()

	orig, ok := repo.db.t.speakers[spk.ID]
	if !ok {
		return event.Speaker{}, event.ErrSpeakerNotFound
	}
	spk.CreatedBy = orig.CreatedBy
	spk.CreatedAt = orig.CreatedAt
	repo.db.t.speakers[spk.ID] = spk
	return spk, nil
}

func (repo *speakerRepository) DeleteSpeaker(_ context.Context, id string, exec ...core.DBExecutor) error {
	defer repo.db.acquire(exec)()

	if _, ok := repo.db.t.speakers[id]; !ok {
		return event.ErrSpeakerNotFound
	}
	delete(repo.db.t.speakers, id)
	return nil
}

// Engagements

type engagementRepository struct {
	db *DB
}

var _ event.EngagementRepository = (*engagementRepository)(nil) // interface compliance check

func NewEngagementRepository(db *DB) *engagementRepository {
	return &engagementRepository{db: db}
}

func (repo *engagementRepository) RecordView(_ context.Context, eventID, userID string, at time.Time, exec ...core.DBExecutor) (event.EngagementRecord, error) {
	defer repo.db.acquire(exec)()

	key := engagementKey{eventID: eventID, userID: userID}
	rec, ok := repo.db.t.engagements[key]
	if !ok {
		rec = event.EngagementRecord{EventID: eventID, UserID: userID}
	}
	t := at
	if rec.ViewedAt == nil {
		rec.ViewedAt = &t
	}
	rec.LastViewedAt = &t
	rec.HasViewed = true
	rec.ViewCount++
	repo.db.t.engagements[key] = rec
	return rec, nil
}

func (repo *engagementRepository) GetEngagement(_ context.Context, eventID, userID string, exec ...core.DBExecutor) (event.EngagementRecord, error) {
	defer repo.db.acquire(exec)()

	rec, ok := repo.db.t.engagements[engagementKey{eventID: eventID, userID: userID}]
	if !ok {
		return event.EngagementRecord{}, event.ErrEngagementNotFound
	}
	return rec, nil
}

func (repo *engagementRepository) SaveEngagement(_ context.Context, rec event.EngagementRecord, exec ...core.DBExecutor) (event.EngagementRecord, error) {
	defer repo.db.acquire(exec)()

	repo.db.t.engagements[engagementKey{eventID: rec.EventID, userID: rec.UserID}] = rec
	return rec, nil
}

func (repo *engagementRepository) DeleteEventEngagements(_ context.Context, eventID string, exec ...core.DBExecutor) error {
	defer repo.db.acquire(exec)()

	for key := range repo.db.t.engagements {
		if key.eventID == eventID {
			delete(repo.db.t.engagements, key)
		}
	}
	return nil
}
