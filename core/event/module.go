package event

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/iems/core"
	"github.com/trezcool/iems/core/privilege"
)

// Document is a file attached to a module.
type Document struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Path        string `json:"path"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

func (d *Document) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(*d)
}

func (d *Document) Scan(src interface{}) error {
	return scanJSON(src, d)
}

// Module is a sub-event of an event.
type Module struct {
	ID          string     `json:"id"`
	EventID     string     `json:"event_id"`
	Order       int        `json:"order"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	StartsAt    *time.Time `json:"starts_at"`
	EndsAt      *time.Time `json:"ends_at"`
	Venue       Venue      `json:"venue"`
	Price       float64    `json:"price"` // 0 means free
	Document    *Document  `json:"document"`
	SpeakerIDs  []string   `json:"speaker_ids"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (m Module) Clone() Module {
	c := m
	c.SpeakerIDs = cloneStrings(m.SpeakerIDs)
	if m.Document != nil {
		doc := *m.Document
		c.Document = &doc
	}
	return c
}

type NewModule struct {
	Title       string         `json:"title" validate:"required,max=200"`
	Description string         `json:"description" validate:"max=10000"`
	Order       *int           `json:"order" validate:"omitempty,gte=0"`
	StartsAt    core.Timestamp `json:"starts_at"`
	EndsAt      core.Timestamp `json:"ends_at"`
	Venue       Venue          `json:"venue"`
	Price       float64        `json:"price" validate:"gte=0"`
	SpeakerIDs  []string       `json:"speaker_ids"`
}

func (nm *NewModule) Validate(validate *validator.Validate) error {
	nm.Title = core.CleanString(nm.Title)
	nm.Description = core.CleanString(nm.Description)
	nm.SpeakerIDs = core.CleanStrings(nm.SpeakerIDs)
	if err := validate.Struct(nm); err != nil {
		return err
	}
	if !nm.StartsAt.IsZero() && !nm.EndsAt.IsZero() && nm.EndsAt.Before(nm.StartsAt.Time) {
		return core.NewValidationError(nil, core.FieldError{Field: "ends_at", Error: errEndsBeforeStart.Error()})
	}
	return nil
}

type UpdateModule struct {
	Title       *string         `json:"title" validate:"omitempty,notblank,max=200"`
	Description *string         `json:"description" validate:"omitempty,max=10000"`
	Order       *int            `json:"order" validate:"omitempty,gte=0"`
	StartsAt    *core.Timestamp `json:"starts_at"`
	EndsAt      *core.Timestamp `json:"ends_at"`
	Venue       *Venue          `json:"venue"`
	Price       *float64        `json:"price" validate:"omitempty,gte=0"`
	SpeakerIDs  *[]string       `json:"speaker_ids"`
}

func (um *UpdateModule) Validate(validate *validator.Validate) error {
	if um.Title != nil {
		title := core.CleanString(*um.Title)
		um.Title = &title
	}
	if um.Description != nil {
		desc := core.CleanString(*um.Description)
		um.Description = &desc
	}
	if um.SpeakerIDs != nil {
		ids := core.CleanStrings(*um.SpeakerIDs)
		if ids == nil {
			ids = []string{}
		}
		um.SpeakerIDs = &ids
	}
	return validate.Struct(um)
}

func (um UpdateModule) apply(mod Module) Module {
	if um.Title != nil {
		mod.Title = *um.Title
	}
	if um.Description != nil {
		mod.Description = *um.Description
	}
	if um.Order != nil {
		mod.Order = *um.Order
	}
	if um.StartsAt != nil {
		mod.StartsAt = um.StartsAt.Ptr()
	}
	if um.EndsAt != nil {
		mod.EndsAt = um.EndsAt.Ptr()
	}
	if um.Venue != nil {
		mod.Venue = *um.Venue
	}
	if um.Price != nil {
		mod.Price = *um.Price
	}
	if um.SpeakerIDs != nil {
		mod.SpeakerIDs = cloneStrings(*um.SpeakerIDs)
	}
	return mod
}

// CreateModule adds a module to an event and links it in the event's sub-events.
// Without an explicit order, the module goes last.
func (svc *Service) CreateModule(ctx context.Context, eventID string, nm NewModule, actor privilege.Actor) (Module, error) {
	var mod Module
	err := svc.tx.WithinTx(ctx, func(ctx context.Context, exec core.DBExecutor) error {
		ev, err := svc.repo.GetEvent(ctx, eventID, exec)
		if err != nil {
			return err
		}
		if !privilege.CanEdit(actor, ev.SocietyID) {
			return core.ErrPermissionDenied
		}

		order := len(ev.SubEventIDs)
		if nm.Order != nil {
			order = *nm.Order
		}
		now := core.NowFunc()
		mod = Module{
			ID:          newID(),
			EventID:     ev.ID,
			Order:       order,
			Title:       nm.Title,
			Description: nm.Description,
			StartsAt:    nm.StartsAt.Ptr(),
			EndsAt:      nm.EndsAt.Ptr(),
			Venue:       nm.Venue,
			Price:       nm.Price,
			SpeakerIDs:  nm.SpeakerIDs,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if mod.SpeakerIDs == nil {
			mod.SpeakerIDs = []string{}
		}
		if mod, err = svc.modules.CreateModule(ctx, mod, exec); err != nil {
			return errors.Wrap(err, "creating module")
		}
		return errors.Wrap(svc.repo.AddSubEventID(ctx, ev.ID, mod.ID, exec), "linking module to event")
	})
	if err != nil {
		return Module{}, err
	}
	return mod, nil
}

func (svc *Service) GetModule(ctx context.Context, id string) (Module, error) {
	return svc.modules.GetModule(ctx, id)
}

// ListModules returns the modules of a visible event, ordered by their order.
func (svc *Service) ListModules(ctx context.Context, eventID string, actor privilege.Actor) ([]Module, error) {
	if _, err := svc.Get(ctx, eventID, actor); err != nil {
		return nil, err
	}
	return svc.modules.QueryModules(ctx, eventID)
}

// authorizeModule returns the module if the actor may edit its parent event.
func (svc *Service) authorizeModule(ctx context.Context, id string, actor privilege.Actor) (Module, error) {
	mod, err := svc.modules.GetModule(ctx, id)
	if err != nil {
		return Module{}, err
	}
	if _, err = svc.Authorize(ctx, mod.EventID, actor); err != nil {
		return Module{}, err
	}
	return mod, nil
}

func (svc *Service) UpdateModule(ctx context.Context, id string, um UpdateModule, actor privilege.Actor) (Module, error) {
	mod, err := svc.authorizeModule(ctx, id, actor)
	if err != nil {
		return Module{}, err
	}
	mod = um.apply(mod)
	if mod.StartsAt != nil && mod.EndsAt != nil && mod.EndsAt.Before(*mod.StartsAt) {
		return Module{}, core.NewValidationError(nil, core.FieldError{Field: "ends_at", Error: errEndsBeforeStart.Error()})
	}
	mod.UpdatedAt = core.NowFunc()
	return svc.modules.UpdateModule(ctx, mod)
}

// SetModuleDocument attaches doc to the module, replacing any previous one.
func (svc *Service) SetModuleDocument(ctx context.Context, id string, doc Document, actor privilege.Actor) (Module, error) {
	mod, err := svc.authorizeModule(ctx, id, actor)
	if err != nil {
		return Module{}, err
	}
	mod.Document = &doc
	mod.UpdatedAt = core.NowFunc()
	return svc.modules.UpdateModule(ctx, mod)
}

// DeleteModule removes the module and unlinks it from its event.
func (svc *Service) DeleteModule(ctx context.Context, id string, actor privilege.Actor) error {
	mod, err := svc.authorizeModule(ctx, id, actor)
	if err != nil {
		return err
	}
	return svc.tx.WithinTx(ctx, func(ctx context.Context, exec core.DBExecutor) error {
		if err := svc.modules.DeleteModule(ctx, mod.ID, exec); err != nil {
			return errors.Wrap(err, "deleting module")
		}
		return errors.Wrap(svc.repo.RemoveSubEventID(ctx, mod.EventID, mod.ID, exec), "unlinking module from event")
	})
}
