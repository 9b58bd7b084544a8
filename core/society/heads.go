package society

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/iems/core"
	"github.com/trezcool/iems/core/privilege"
	"github.com/trezcool/iems/core/user"
)

// AssignHead fills a vacant head slot of a society with a registered, verified user
// who does not already head a society. Only admins may assign heads.
// The user and society writes are committed together or not at all.
func (svc *Service) AssignHead(ctx context.Context, id string, ah AssignHead, actor privilege.Actor) (AssignResult, error) {
	if actor.IsAnonymous() || !privilege.IsAdmin(actor.Privilege) {
		return AssignResult{}, core.ErrPermissionDenied
	}
	role, ok := ParseRole(ah.Role)
	if !ok {
		return AssignResult{}, core.NewValidationError(errInvalidRole, core.FieldError{Field: "role", Error: errInvalidRole.Error()})
	}
	email := core.CleanString(ah.Email, true /* lower */)

	// the domain is checked before anything is read
	if !svc.conf.IsInstitutionEmail(email) {
		return AssignResult{}, core.NewValidationError(
			fmt.Errorf("Only institutional email addresses (%s) can be assigned as society heads.", svc.conf.InstitutionEmailDomain),
			core.FieldError{Field: "email", Error: "email must belong to the institution's domain"},
		)
	}

	var (
		soc       Society
		candidate user.User
	)
	err := svc.tx.WithinTx(ctx, func(ctx context.Context, exec core.DBExecutor) error {
		var err error
		if soc, err = svc.repo.GetSocietyForUpdate(ctx, id, exec); err != nil {
			return errors.Wrap(err, "finding society")
		}

		if soc.Heads.Get(role) != nil {
			return core.NewValidationError(fmt.Errorf("%s role is already assigned. Please choose a different role.", role))
		}

		// a concurrent assignment of the same user waits here until this one commits
		candidate, err = svc.usrSvc.GetByEmailForUpdate(ctx, email, exec)
		if err != nil {
			if core.IsNotFound(err) {
				return core.NewValidationError(fmt.Errorf("User with email %s is not registered. They must sign up first.", email))
			}
			return errors.Wrap(err, "finding candidate")
		}

		if !candidate.EmailVerified {
			return core.NewValidationError(fmt.Errorf("User %s has not verified their email yet.", email))
		}

		if privilege.Resolve(candidate.Privilege) == privilege.SocietyHead && core.StringVal(candidate.SocietyID) != "" {
			return core.NewValidationError(svc.alreadyHeadErr(ctx, candidate, exec))
		}

		if _, found := soc.Heads.RoleOf(candidate.ID); found {
			return core.NewValidationError(errors.New("This user is already a head in this society."))
		}

		roleName := string(role)
		if err = svc.usrSvc.UpdatePrivilege(ctx, candidate.ID, privilege.SocietyHead, &soc.ID, &roleName, exec); err != nil {
			return errors.Wrap(err, "updating candidate privilege")
		}
		soc.Heads.Set(role, &candidate.ID)
		return errors.Wrap(svc.repo.UpdateHeads(ctx, soc.ID, soc.Heads, core.NowFunc(), exec), "updating society heads")
	})
	if err != nil {
		return AssignResult{}, err
	}

	svc.publishIdentity(ctx, candidate.ID)
	svc.sendHeadMail(candidate, soc, role, "head_assigned", "You are now "+string(role)+" of "+soc.Name)

	name := candidate.Name
	if name == "" {
		name = candidate.Email
	}
	return AssignResult{
		Heads: soc.Heads,
		Head:  HeadInfo{ID: candidate.ID, Name: name, Email: candidate.Email, Role: role},
	}, nil
}

// alreadyHeadErr names the role and society the candidate already heads.
func (svc *Service) alreadyHeadErr(ctx context.Context, candidate user.User, exec core.DBExecutor) error {
	role := core.StringVal(candidate.SocietyRole)
	if role == "" {
		role = "head"
	}
	other, err := svc.repo.GetSociety(ctx, core.StringVal(candidate.SocietyID), exec)
	if err != nil {
		return fmt.Errorf("%s is already a %s of another society.", candidate.Email, role)
	}
	return fmt.Errorf("%s is already a %s of %s.", candidate.Email, role, other.Name)
}

// RemoveHead vacates a head slot and demotes its holder to a normal user.
// Vacating an empty slot is a no-op returning nil heads.
func (svc *Service) RemoveHead(ctx context.Context, id, roleName string, actor privilege.Actor) (*Heads, error) {
	if actor.IsAnonymous() || !privilege.IsAdmin(actor.Privilege) {
		return nil, core.ErrPermissionDenied
	}
	role, ok := ParseRole(roleName)
	if !ok {
		return nil, core.NewValidationError(errInvalidRole, core.FieldError{Field: "role", Error: errInvalidRole.Error()})
	}

	var (
		soc    Society
		holder string
	)
	err := svc.tx.WithinTx(ctx, func(ctx context.Context, exec core.DBExecutor) error {
		var err error
		if soc, err = svc.repo.GetSocietyForUpdate(ctx, id, exec); err != nil {
			return errors.Wrap(err, "finding society")
		}
		uid := soc.Heads.Get(role)
		if uid == nil {
			return nil
		}
		holder = *uid

		soc.Heads.Set(role, nil)
		if err = svc.repo.UpdateHeads(ctx, soc.ID, soc.Heads, core.NowFunc(), exec); err != nil {
			return errors.Wrap(err, "updating society heads")
		}
		return errors.Wrap(
			svc.usrSvc.UpdatePrivilege(ctx, holder, privilege.NormalUser, nil, nil, exec),
			"resetting head privilege",
		)
	})
	if err != nil {
		return nil, err
	}
	if holder == "" {
		return nil, nil
	}

	svc.publishIdentity(ctx, holder)
	if usr, err := svc.usrSvc.GetByID(ctx, holder); err == nil {
		svc.sendHeadMail(usr, soc, role, "head_removed", "You are no longer "+string(role)+" of "+soc.Name)
	}
	return &soc.Heads, nil
}
