package event

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/iems/core"
	"github.com/trezcool/iems/core/privilege"
)

type Speaker struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Designation  string    `json:"designation"`
	Organization string    `json:"organization"`
	Bio          string    `json:"bio"`
	PhotoURL     string    `json:"photo_url"`
	LinkedIn     string    `json:"linkedin"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type NewSpeaker struct {
	Name         string `json:"name" validate:"required,max=100"`
	Designation  string `json:"designation" validate:"max=100"`
	Organization string `json:"organization" validate:"max=100"`
	Bio          string `json:"bio" validate:"max=5000"`
	LinkedIn     string `json:"linkedin" validate:"omitempty,httpurl"`
}

func (ns *NewSpeaker) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	ns.Designation = core.CleanString(ns.Designation)
	ns.Organization = core.CleanString(ns.Organization)
	ns.Bio = core.CleanString(ns.Bio)
	ns.LinkedIn = core.CleanString(ns.LinkedIn)
	return validate.Struct(ns)
}

type UpdateSpeaker struct {
	Name         *string `json:"name" validate:"omitempty,notblank,max=100"`
	Designation  *string `json:"designation" validate:"omitempty,max=100"`
	Organization *string `json:"organization" validate:"omitempty,max=100"`
	Bio          *string `json:"bio" validate:"omitempty,max=5000"`
	LinkedIn     *string `json:"linkedin" validate:"omitempty,httpurl"`
}

func (us *UpdateSpeaker) Validate(validate *validator.Validate) error {
	for _, fld := range []**string{&us.Name, &us.Designation, &us.Organization, &us.Bio, &us.LinkedIn} {
		if *fld != nil {
			s := core.CleanString(**fld)
			*fld = &s
		}
	}
	return validate.Struct(us)
}

func (us UpdateSpeaker) apply(spk Speaker) Speaker {
	if us.Name != nil {
		spk.Name = *us.Name
	}
	if us.Designation != nil {
		spk.Designation = *us.Designation
	}
	if us.Organization != nil {
		spk.Organization = *us.Organization
	}
	if us.Bio != nil {
		spk.Bio = *us.Bio
	}
	if us.LinkedIn != nil {
		spk.LinkedIn = *us.LinkedIn
	}
	return spk
}

func canManageSpeakers(actor privilege.Actor) bool {
	return !actor.IsAnonymous() && privilege.CanManageSociety(actor.Privilege)
}

func (svc *Service) CreateSpeaker(ctx context.Context, ns NewSpeaker, actor privilege.Actor) (Speaker, error) {
	if !canManageSpeakers(actor) {
		return Speaker{}, core.ErrPermissionDenied
	}
	now := core.NowFunc()
	return svc.speakers.CreateSpeaker(ctx, Speaker{
		ID:           newID(),
		Name:         ns.Name,
		Designation:  ns.Designation,
		Organization: ns.Organization,
		Bio:          ns.Bio,
		LinkedIn:     ns.LinkedIn,
		CreatedBy:    actor.UserID,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

func (svc *Service) GetSpeaker(ctx context.Context, id string) (Speaker, error) {
	return svc.speakers.GetSpeaker(ctx, id)
}

// ListSpeakers returns the speakers with the given ids, or every speaker when ids is empty.
func (svc *Service) ListSpeakers(ctx context.Context, ids []string) ([]Speaker, error) {
	return svc.speakers.QuerySpeakers(ctx, core.CleanStrings(ids))
}

func (svc *Service) UpdateSpeaker(ctx context.Context, id string, us UpdateSpeaker, actor privilege.Actor) (Speaker, error) {
	if !canManageSpeakers(actor) {
		return Speaker{}, core.ErrPermissionDenied
	}
	spk, err := svc.speakers.GetSpeaker(ctx, id)
	if err != nil {
		return Speaker{}, err
	}
	spk = us.apply(spk)
	spk.UpdatedAt = core.NowFunc()
	return svc.speakers.UpdateSpeaker(ctx, spk)
}

func (svc *Service) SetSpeakerPhoto(ctx context.Context, id, photoURL string, actor privilege.Actor) (Speaker, error) {
	if !canManageSpeakers(actor) {
		return Speaker{}, core.ErrPermissionDenied
	}
	spk, err := svc.speakers.GetSpeaker(ctx, id)
	if err != nil {
		return Speaker{}, err
	}
	spk.PhotoURL = photoURL
	spk.UpdatedAt = core.NowFunc()
	return svc.speakers.UpdateSpeaker(ctx, spk)
}

func (svc *Service) DeleteSpeaker(ctx context.Context, id string, actor privilege.Actor) error {
	if !canManageSpeakers(actor) {
		return core.ErrPermissionDenied
	}
	return svc.speakers.DeleteSpeaker(ctx, id)
}
