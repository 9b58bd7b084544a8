package event

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/iems/core"
	"github.com/trezcool/iems/core/privilege"
	"github.com/trezcool/iems/core/society"
)

var (
	// errors
	ErrNotFound           = core.NewNotFoundError("event")
	ErrModuleNotFound     = core.NewNotFoundError("module")
	ErrSpeakerNotFound    = core.NewNotFoundError("speaker")
	ErrEngagementNotFound = core.NewNotFoundError("engagement")
	errInvalidStatus      = errors.New("status must be one of draft, published, concluded")
	errEndsBeforeStart    = errors.New("end time must be after start time")
	errNothingToUpdate    = errors.New("nothing to update")
)

type (
	Repository interface {
		CreateEvent(ctx context.Context, ev Event, exec ...core.DBExecutor) (Event, error)
		GetEvent(ctx context.Context, id string, exec ...core.DBExecutor) (Event, error)
		QueryEvents(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Event, error)
		// UpdateEvent persists the non-nil fields of changes only.
		UpdateEvent(ctx context.Context, id string, changes Changes, exec ...core.DBExecutor) error
		// IncrementMetrics adds delta to the event counters in the store. Counters never drop below zero.
		IncrementMetrics(ctx context.Context, id string, delta Metrics, exec ...core.DBExecutor) error
		AddSubEventID(ctx context.Context, id, moduleID string, exec ...core.DBExecutor) error
		RemoveSubEventID(ctx context.Context, id, moduleID string, exec ...core.DBExecutor) error
		// ConcludeEvents marks published events that ended (or started, when they have no end) before `before` as concluded.
		ConcludeEvents(ctx context.Context, before, updatedAt time.Time, exec ...core.DBExecutor) (int64, error)
		CountEventsByStatus(ctx context.Context, exec ...core.DBExecutor) (map[Status]int, error)
		DeleteEvent(ctx context.Context, id string, exec ...core.DBExecutor) error
	}

	ModuleRepository interface {
		CreateModule(ctx context.Context, mod Module, exec ...core.DBExecutor) (Module, error)
		GetModule(ctx context.Context, id string, exec ...core.DBExecutor) (Module, error)
		QueryModules(ctx context.Context, eventID string, exec ...core.DBExecutor) ([]Module, error)
		UpdateModule(ctx context.Context, mod Module, exec ...core.DBExecutor) (Module, error)
		DeleteModule(ctx context.Context, id string, exec ...core.DBExecutor) error
		DeleteEventModules(ctx context.Context, eventID string, exec ...core.DBExecutor) error
	}

	SpeakerRepository interface {
		CreateSpeaker(ctx context.Context, spk Speaker, exec ...core.DBExecutor) (Speaker, error)
		GetSpeaker(ctx context.Context, id string, exec ...core.DBExecutor) (Speaker, error)
		QuerySpeakers(ctx context.Context, ids []string, exec ...core.DBExecutor) ([]Speaker, error)
		UpdateSpeaker(ctx context.Context, spk Speaker, exec ...core.DBExecutor) (Speaker, error)
		DeleteSpeaker(ctx context.Context, id string, exec ...core.DBExecutor) error
	}

	EngagementRepository interface {
		// RecordView creates the (event, user) record on the first view or bumps its view count.
		RecordView(ctx context.Context, eventID, userID string, at time.Time, exec ...core.DBExecutor) (EngagementRecord, error)
		GetEngagement(ctx context.Context, eventID, userID string, exec ...core.DBExecutor) (EngagementRecord, error)
		SaveEngagement(ctx context.Context, rec EngagementRecord, exec ...core.DBExecutor) (EngagementRecord, error)
		DeleteEventEngagements(ctx context.Context, eventID string, exec ...core.DBExecutor) error
	}

	Service struct {
		tx          core.Transactor
		repo        Repository
		modules     ModuleRepository
		speakers    SpeakerRepository
		engagements EngagementRepository
		societies   society.Repository
		logger      core.Logger
		conf        *core.Config
	}
)

// EventOrderings are the fields events may be ordered by.
var EventOrderings = []string{"starts_at", "created_at", "title"}

// newID is replaced in tests.
var newID = func() string { return uuid.New().String() }

func NewService(
	tx core.Transactor,
	repo Repository,
	modules ModuleRepository,
	speakers SpeakerRepository,
	engagements EngagementRepository,
	societies society.Repository,
	logger core.Logger,
	conf *core.Config,
) *Service {
	return &Service{
		tx:          tx,
		repo:        repo,
		modules:     modules,
		speakers:    speakers,
		engagements: engagements,
		societies:   societies,
		logger:      logger,
		conf:        conf,
	}
}

// Create creates an event for a society the actor may edit, and links it to the society.
func (svc *Service) Create(ctx context.Context, ne NewEvent, actor privilege.Actor) (Event, error) {
	if !privilege.CanEdit(actor, ne.SocietyID) {
		return Event{}, core.ErrPermissionDenied
	}

	now := core.NowFunc()
	ev := Event{
		ID:               newID(),
		SocietyID:        ne.SocietyID,
		Title:            ne.Title,
		Description:      ne.Description,
		Type:             ne.Type,
		StartsAt:         ne.StartsAt.UTC(),
		EndsAt:           ne.EndsAt.Ptr(),
		Venue:            ne.Venue,
		RegistrationLink: ne.RegistrationLink,
		Status:           Status(ne.Status),
		Tags:             ne.Tags,
		SubEventIDs:      []string{},
		SpeakerIDs:       ne.SpeakerIDs,
		CreatedBy:        actor.UserID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if ev.Tags == nil {
		ev.Tags = []string{}
	}
	if ev.SpeakerIDs == nil {
		ev.SpeakerIDs = []string{}
	}

	err := svc.tx.WithinTx(ctx, func(ctx context.Context, exec core.DBExecutor) error {
		if _, err := svc.societies.GetSocietyForUpdate(ctx, ev.SocietyID, exec); err != nil {
			if core.IsNotFound(err) {
				return core.NewValidationError(nil, core.FieldError{Field: "society_id", Error: "society does not exist"})
			}
			return errors.Wrap(err, "finding society")
		}
		var err error
		if ev, err = svc.repo.CreateEvent(ctx, ev, exec); err != nil {
			return errors.Wrap(err, "creating event")
		}
		return errors.Wrap(svc.societies.AddEventID(ctx, ev.SocietyID, ev.ID, exec), "linking event to society")
	})
	if err != nil {
		return Event{}, err
	}
	return ev, nil
}

// Get returns the event. Drafts are only visible to the actors who may edit them.
func (svc *Service) Get(ctx context.Context, id string, actor privilege.Actor) (Event, error) {
	ev, err := svc.repo.GetEvent(ctx, id)
	if err != nil {
		return Event{}, err
	}
	if ev.Status == StatusDraft && !privilege.CanEdit(actor, ev.SocietyID) {
		return Event{}, ErrNotFound
	}
	return ev, nil
}

// Authorize returns the event if the actor may edit it.
func (svc *Service) Authorize(ctx context.Context, id string, actor privilege.Actor) (Event, error) {
	ev, err := svc.repo.GetEvent(ctx, id)
	if err != nil {
		return Event{}, err
	}
	if !privilege.CanEdit(actor, ev.SocietyID) {
		return Event{}, core.ErrPermissionDenied
	}
	return ev, nil
}

func (svc *Service) List(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, actor privilege.Actor) ([]Event, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	filter.Clean()
	filter.Visibility = visibilityOf(actor)

	ordering = core.FilterOrderings(ordering, EventOrderings...)
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "starts_at", Ascending: true}}
	}
	return svc.repo.QueryEvents(ctx, filter, ordering)
}

// Calendar returns the visible events starting within the given month (UTC).
func (svc *Service) Calendar(ctx context.Context, year int, month time.Month, actor privilege.Actor) ([]Event, error) {
	if month < time.January || month > time.December {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "month", Error: "month must be between 1 and 12"})
	}
	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return svc.List(ctx, &QueryFilter{From: from, To: from.AddDate(0, 1, 0)}, nil, actor)
}

func visibilityOf(actor privilege.Actor) Visibility {
	switch {
	case actor.IsAnonymous():
		return Visibility{}
	case privilege.IsAdmin(actor.Privilege):
		return Visibility{All: true}
	case privilege.IsSocietyHead(actor.Privilege):
		return Visibility{SocietyID: actor.SocietyID}
	}
	return Visibility{}
}

// Update saves the non-nil fields of changes, and only those.
func (svc *Service) Update(ctx context.Context, id string, changes Changes, actor privilege.Actor) (Event, error) {
	if changes.IsEmpty() {
		return Event{}, core.NewValidationError(errNothingToUpdate)
	}
	ev, err := svc.Authorize(ctx, id, actor)
	if err != nil {
		return Event{}, err
	}

	updated := changes.Apply(ev)
	if updated.EndsAt != nil && updated.EndsAt.Before(updated.StartsAt) {
		return Event{}, core.NewValidationError(nil, core.FieldError{Field: "ends_at", Error: errEndsBeforeStart.Error()})
	}

	changes.UpdatedAt = core.NowFunc()
	if err = svc.repo.UpdateEvent(ctx, id, changes); err != nil {
		return Event{}, errors.Wrap(err, "updating event")
	}
	return changes.Apply(ev), nil
}

// SetImage saves the URL of the event's cover image.
func (svc *Service) SetImage(ctx context.Context, id, imageURL string, actor privilege.Actor) (Event, error) {
	return svc.Update(ctx, id, Changes{ImageURL: &imageURL}, actor)
}

// Delete removes the event with its modules and engagement records, and unlinks it from its society.
func (svc *Service) Delete(ctx context.Context, id string, actor privilege.Actor) error {
	return svc.tx.WithinTx(ctx, func(ctx context.Context, exec core.DBExecutor) error {
		ev, err := svc.repo.GetEvent(ctx, id, exec)
		if err != nil {
			return err
		}
		if !privilege.CanEdit(actor, ev.SocietyID) {
			return core.ErrPermissionDenied
		}
		if err = svc.engagements.DeleteEventEngagements(ctx, id, exec); err != nil {
			return errors.Wrap(err, "deleting engagements")
		}
		if err = svc.modules.DeleteEventModules(ctx, id, exec); err != nil {
			return errors.Wrap(err, "deleting modules")
		}
		if err = svc.repo.DeleteEvent(ctx, id, exec); err != nil {
			return errors.Wrap(err, "deleting event")
		}
		if err = svc.societies.RemoveEventID(ctx, ev.SocietyID, id, exec); err != nil && !core.IsNotFound(err) {
			return errors.Wrap(err, "unlinking event from society")
		}
		return nil
	})
}

// ConcludePast concludes the published events that are over as of now.
func (svc *Service) ConcludePast(ctx context.Context, now time.Time) (int64, error) {
	n, err := svc.repo.ConcludeEvents(ctx, now.UTC(), core.NowFunc())
	if err != nil {
		return 0, errors.Wrap(err, "concluding events")
	}
	return n, nil
}

func (svc *Service) CountByStatus(ctx context.Context) (map[Status]int, error) {
	return svc.repo.CountEventsByStatus(ctx)
}
