package society

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/iems/core"
	"github.com/trezcool/iems/core/privilege"
	"github.com/trezcool/iems/core/user"
)

var (
	// errors
	ErrNotFound      = core.NewNotFoundError("society")
	ErrDuplicateName = errors.New("a society with this name already exists")
	errHasEvents     = errors.New("delete the society's events first")
	errInvalidRole   = errors.New("role must be one of CEO, CFO, COO")
	errNameNoSlug    = errors.New("name must contain a letter or a digit")
)

type (
	Repository interface {
		SocietyExists(ctx context.Context, id string, exec ...core.DBExecutor) (bool, error)
		// CreateSociety returns ErrDuplicateName when the id is taken.
		CreateSociety(ctx context.Context, soc Society, exec ...core.DBExecutor) (Society, error)
		GetSociety(ctx context.Context, id string, exec ...core.DBExecutor) (Society, error)
		// GetSocietyForUpdate locks the society until the end of the transaction exec belongs to.
		GetSocietyForUpdate(ctx context.Context, id string, exec ...core.DBExecutor) (Society, error)
		QuerySocieties(ctx context.Context, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Society, error)
		// UpdateSocietyDetails saves description, contact_email, social_links, logo_url and updated_at.
		UpdateSocietyDetails(ctx context.Context, soc Society, exec ...core.DBExecutor) (Society, error)
		UpdateHeads(ctx context.Context, id string, heads Heads, updatedAt time.Time, exec ...core.DBExecutor) error
		AddEventID(ctx context.Context, id, eventID string, exec ...core.DBExecutor) error
		RemoveEventID(ctx context.Context, id, eventID string, exec ...core.DBExecutor) error
		DeleteSociety(ctx context.Context, id string, exec ...core.DBExecutor) error
	}

	// UserService is the part of the user service societies depend on.
	UserService interface {
		GetByID(ctx context.Context, id string, exec ...core.DBExecutor) (user.User, error)
		GetByEmailForUpdate(ctx context.Context, email string, exec core.DBExecutor) (user.User, error)
		UpdatePrivilege(ctx context.Context, id string, level privilege.Level, societyID, role *string, exec ...core.DBExecutor) error
		PublishIdentity(ctx context.Context, id string, kind user.IdentityChangeKind) (user.User, error)
	}

	Service struct {
		tx      core.Transactor
		repo    Repository
		usrSvc  UserService
		mailSvc core.EmailService
		logger  core.Logger
		conf    *core.Config
	}
)

// SocietyOrderings are the fields societies may be ordered by.
var SocietyOrderings = []string{"name", "created_at"}

func NewService(tx core.Transactor, repo Repository, usrSvc UserService, mailSvc core.EmailService, logger core.Logger, conf *core.Config) *Service {
	return &Service{
		tx:      tx,
		repo:    repo,
		usrSvc:  usrSvc,
		mailSvc: mailSvc,
		logger:  logger,
		conf:    conf,
	}
}

// Create creates a society keyed by the slug of its name. Only admins may create societies.
// An existing society with the same key fails with ErrDuplicateName before anything is written.
func (svc *Service) Create(ctx context.Context, ns NewSociety, creator privilege.Actor) (Society, error) {
	if creator.IsAnonymous() || !privilege.IsAdmin(creator.Privilege) {
		return Society{}, core.ErrPermissionDenied
	}

	id := Slugify(ns.Name)
	if id == "" {
		return Society{}, core.NewValidationError(errNameNoSlug, core.FieldError{Field: "name", Error: errNameNoSlug.Error()})
	}
	exists, err := svc.repo.SocietyExists(ctx, id)
	if err != nil {
		return Society{}, errors.Wrap(err, "checking society existence")
	}
	if exists {
		return Society{}, duplicateNameErr()
	}

	now := core.NowFunc()
	soc, err := svc.repo.CreateSociety(ctx, Society{
		ID:          id,
		Name:        ns.Name,
		MaxHeads:    MaxHeads,
		SocialLinks: SocialLinks{},
		EventIDs:    []string{},
		CreatedBy:   creator.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		if errors.Cause(err) == ErrDuplicateName {
			return Society{}, duplicateNameErr()
		}
		return Society{}, errors.Wrap(err, "creating society")
	}
	return soc, nil
}

func duplicateNameErr() error {
	return core.NewValidationError(ErrDuplicateName, core.FieldError{Field: "name", Error: ErrDuplicateName.Error()})
}

func (svc *Service) Get(ctx context.Context, id string) (Society, error) {
	return svc.repo.GetSociety(ctx, id)
}

func (svc *Service) List(ctx context.Context, ordering []core.DBOrdering) ([]Society, error) {
	ordering = core.FilterOrderings(ordering, SocietyOrderings...)
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "name", Ascending: true}}
	}
	return svc.repo.QuerySocieties(ctx, ordering)
}

// Update changes the details of a society; the actor must be allowed to edit it.
func (svc *Service) Update(ctx context.Context, id string, us UpdateSociety, actor privilege.Actor) (Society, error) {
	soc, err := svc.repo.GetSociety(ctx, id)
	if err != nil {
		return Society{}, errors.Wrap(err, "finding society")
	}
	if !privilege.CanEdit(actor, soc.ID) {
		return Society{}, core.ErrPermissionDenied
	}

	if us.Description != nil {
		soc.Description = *us.Description
	}
	if us.ContactEmail != nil {
		soc.ContactEmail = *us.ContactEmail
	}
	if us.SocialLinks != nil {
		soc.SocialLinks = us.SocialLinks
	}
	soc.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateSocietyDetails(ctx, soc)
}

// SetLogo saves the URL of the society's logo.
func (svc *Service) SetLogo(ctx context.Context, id, logoURL string, actor privilege.Actor) (Society, error) {
	soc, err := svc.repo.GetSociety(ctx, id)
	if err != nil {
		return Society{}, errors.Wrap(err, "finding society")
	}
	if !privilege.CanEdit(actor, soc.ID) {
		return Society{}, core.ErrPermissionDenied
	}
	soc.LogoURL = logoURL
	soc.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateSocietyDetails(ctx, soc)
}

// Delete deletes a society without events and demotes its heads. Only admins may delete societies.
func (svc *Service) Delete(ctx context.Context, id string, actor privilege.Actor) error {
	if actor.IsAnonymous() || !privilege.IsAdmin(actor.Privilege) {
		return core.ErrPermissionDenied
	}

	var demoted []string
	err := svc.tx.WithinTx(ctx, func(ctx context.Context, exec core.DBExecutor) error {
		soc, err := svc.repo.GetSocietyForUpdate(ctx, id, exec)
		if err != nil {
			return errors.Wrap(err, "finding society")
		}
		if len(soc.EventIDs) > 0 {
			return core.NewValidationError(errHasEvents)
		}
		for _, role := range Roles {
			if uid := soc.Heads.Get(role); uid != nil {
				if err = svc.usrSvc.UpdatePrivilege(ctx, *uid, privilege.NormalUser, nil, nil, exec); err != nil {
					return errors.Wrap(err, "resetting head privilege")
				}
				demoted = append(demoted, *uid)
			}
		}
		return errors.Wrap(svc.repo.DeleteSociety(ctx, id, exec), "deleting society")
	})
	if err != nil {
		return err
	}

	for _, uid := range demoted {
		svc.publishIdentity(ctx, uid)
	}
	return nil
}

// ResolveHeads returns the display-friendly identity of every filled slot, in role order.
func (svc *Service) ResolveHeads(ctx context.Context, soc Society) ([]HeadInfo, error) {
	heads := make([]HeadInfo, 0, MaxHeads)
	for _, role := range Roles {
		uid := soc.Heads.Get(role)
		if uid == nil {
			continue
		}
		usr, err := svc.usrSvc.GetByID(ctx, *uid)
		if err != nil {
			if core.IsNotFound(err) {
				heads = append(heads, HeadInfo{ID: *uid, Role: role})
				continue
			}
			return nil, errors.Wrap(err, "finding head")
		}
		heads = append(heads, HeadInfo{ID: usr.ID, Name: usr.Name, Email: usr.Email, Role: role})
	}
	return heads, nil
}

func (svc *Service) publishIdentity(ctx context.Context, userID string) {
	if _, err := svc.usrSvc.PublishIdentity(ctx, userID, user.IdentityPrivilegeChanged); err != nil && svc.logger != nil {
		svc.logger.Warn(fmt.Sprintf("publishing identity of user %s: %v", userID, err), err)
	}
}

type headMailData struct {
	Name      string
	Role      Role
	Society   string
	SocietyID string
}

func (svc *Service) sendHeadMail(usr user.User, soc Society, role Role, tmpl, subject string) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      subject,
		TemplateName: tmpl,
		TemplateData: headMailData{Name: usr.Name, Role: role, Society: soc.Name, SocietyID: soc.ID},
	})
}
