package user

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/iems/core"
	"github.com/trezcool/iems/core/privilege"
)

var (
	// errors
	ErrNotFound              = core.NewNotFoundError("user")
	ErrEmailExists           = errors.New("a user with this email already exists")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrEmailAlreadyVerified  = errors.New("email is already verified")
	errInvalidResetLink      = errors.New("the reset link is invalid or has expired")
	errInvalidVerifyLink     = errors.New("the verification link is invalid or has expired")
	errCannotChangeHeadLevel = errors.New("society heads are managed through society head assignment")
)

type (
	Repository interface {
		EmailExists(ctx context.Context, email string, exec ...core.DBExecutor) (bool, error)
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		GetUserByID(ctx context.Context, id string, exec ...core.DBExecutor) (User, error)
		GetUserByEmail(ctx context.Context, email string, exec ...core.DBExecutor) (User, error)
		// GetUserByEmailForUpdate locks the user until the end of the transaction exec belongs to.
		GetUserByEmailForUpdate(ctx context.Context, email string, exec ...core.DBExecutor) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name or User.Email.
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]User, error)
		// UpdateUser saves name, email_verified, password_hash, last_login and updated_at.
		UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		// UpdatePrivilege saves privilege, society_id, society_role and updated_at in a single write.
		UpdatePrivilege(ctx context.Context, id string, level privilege.Level, societyID, role *string, updatedAt time.Time, exec ...core.DBExecutor) error
		CountUsersByPrivilege(ctx context.Context, exec ...core.DBExecutor) (map[privilege.Level]int, error)
	}

	Service struct {
		repo      Repository
		mailSvc   core.EmailService
		publisher IdentityPublisher
		logger    core.Logger
		conf      *core.Config
	}
)

// UserOrderings are the fields users may be ordered by.
var UserOrderings = []string{"name", "email", "created_at", "privilege"}

func NewService(repo Repository, mailSvc core.EmailService, publisher IdentityPublisher, logger core.Logger, conf *core.Config) *Service {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &Service{
		repo:      repo,
		mailSvc:   mailSvc,
		publisher: publisher,
		logger:    logger,
		conf:      conf,
	}
}

// Register signs up a new normal user and sends them a verification email.
func (svc *Service) Register(ctx context.Context, nu NewUser) (User, error) {
	exists, err := svc.repo.EmailExists(ctx, nu.Email)
	if err != nil {
		return User{}, errors.Wrap(err, "checking email uniqueness")
	}
	if exists {
		return User{}, emailExistsErr()
	}

	now := core.NowFunc()
	usr := User{
		Name:      nu.Name,
		Email:     nu.Email,
		Privilege: privilege.NormalUser,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err = usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	usr, err = svc.repo.CreateUser(ctx, usr)
	if err != nil {
		if errors.Cause(err) == ErrEmailExists {
			return User{}, emailExistsErr()
		}
		return User{}, errors.Wrap(err, "creating user")
	}

	svc.sendVerificationMail(usr)
	return usr, nil
}

func emailExistsErr() error {
	return core.NewValidationError(ErrEmailExists, core.FieldError{Field: "email", Error: ErrEmailExists.Error()})
}

// CreateAdmin creates a verified admin; used by the admin CLI.
func (svc *Service) CreateAdmin(ctx context.Context, name, email, pwd string) (User, error) {
	email = core.CleanString(email, true /* lower */)
	exists, err := svc.repo.EmailExists(ctx, email)
	if err != nil {
		return User{}, errors.Wrap(err, "checking email uniqueness")
	}
	if exists {
		return User{}, ErrEmailExists
	}

	now := core.NowFunc()
	usr := User{
		Name:          core.CleanString(name),
		Email:         email,
		Privilege:     privilege.Admin,
		EmailVerified: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err = usr.SetPassword(pwd); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

// Authenticate checks the credentials of a user and stamps their last login.
func (svc *Service) Authenticate(ctx context.Context, email, pwd string) (User, error) {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, ErrInvalidCredentials
		}
		return User{}, errors.Wrap(err, "finding user by email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return User{}, ErrInvalidCredentials
	}

	now := core.NowFunc()
	usr.LastLogin = &now
	usr, err = svc.repo.UpdateUser(ctx, usr)
	return usr, errors.Wrap(err, "setting lastLogin")
}

func (svc *Service) GetByID(ctx context.Context, id string, exec ...core.DBExecutor) (User, error) {
	return svc.repo.GetUserByID(ctx, id, exec...)
}

func (svc *Service) GetByEmail(ctx context.Context, email string, exec ...core.DBExecutor) (User, error) {
	return svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */), exec...)
}

// GetByEmailForUpdate reads and locks the user within the transaction of exec.
func (svc *Service) GetByEmailForUpdate(ctx context.Context, email string, exec core.DBExecutor) (User, error) {
	return svc.repo.GetUserByEmailForUpdate(ctx, core.CleanString(email, true /* lower */), exec)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	return svc.repo.QueryUsers(ctx, filter, core.FilterOrderings(ordering, UserOrderings...))
}

func (svc *Service) CountByPrivilege(ctx context.Context) (map[privilege.Level]int, error) {
	return svc.repo.CountUsersByPrivilege(ctx)
}

func (svc *Service) UpdateProfile(ctx context.Context, id string, up UpdateProfile) (User, error) {
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		return User{}, errors.Wrap(err, "finding user by ID")
	}
	usr.Name = up.Name
	usr.UpdatedAt = core.NowFunc()
	if usr, err = svc.repo.UpdateUser(ctx, usr); err != nil {
		return User{}, errors.Wrap(err, "updating user")
	}
	svc.publish(usr, IdentityProfileUpdated)
	return usr, nil
}

// GetPrivilege resolves the privilege level of a user. It fails closed: a missing user,
// a missing or unknown level and store errors all resolve to privilege.NormalUser.
func (svc *Service) GetPrivilege(ctx context.Context, id string) privilege.Level {
	return svc.Actor(ctx, id).Privilege
}

// Actor resolves the identity of the user id from the store, failing closed like GetPrivilege.
func (svc *Service) Actor(ctx context.Context, id string) privilege.Actor {
	if id == "" {
		return privilege.Actor{}
	}
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		if !core.IsNotFound(err) && svc.logger != nil {
			svc.logger.Error(fmt.Sprintf("resolving privilege of user %s: %v", id, err), err)
		}
		return privilege.Actor{UserID: id, Privilege: privilege.NormalUser}
	}
	return usr.Actor()
}

// UpdatePrivilege sets the privilege, society and role of a user in one write and stamps updatedAt.
// Subscribers are not notified; callers running it in a transaction call PublishIdentity once committed.
func (svc *Service) UpdatePrivilege(ctx context.Context, id string, level privilege.Level, societyID, role *string, exec ...core.DBExecutor) error {
	if !level.Valid() {
		return errors.Errorf("invalid privilege level %d", level)
	}
	if level != privilege.SocietyHead {
		societyID, role = nil, nil
	}
	return svc.repo.UpdatePrivilege(ctx, id, level, societyID, role, core.NowFunc(), exec...)
}

// SetAdmin promotes a user to admin or demotes an admin to normal user.
func (svc *Service) SetAdmin(ctx context.Context, id string, admin bool) (User, error) {
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		return User{}, errors.Wrap(err, "finding user by ID")
	}
	if privilege.Resolve(usr.Privilege) == privilege.SocietyHead {
		return User{}, core.NewValidationError(errCannotChangeHeadLevel)
	}

	level := privilege.NormalUser
	if admin {
		level = privilege.Admin
	}
	if err = svc.UpdatePrivilege(ctx, id, level, nil, nil); err != nil {
		return User{}, errors.Wrap(err, "updating privilege")
	}
	return svc.PublishIdentity(ctx, id, IdentityPrivilegeChanged)
}

// PublishIdentity reloads the user and notifies the subscribers of their identity.
func (svc *Service) PublishIdentity(ctx context.Context, id string, kind IdentityChangeKind) (User, error) {
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		return User{}, errors.Wrap(err, "finding user by ID")
	}
	svc.publish(usr, kind)
	return usr, nil
}

// SignOut notifies the subscribers of the user that their identity is gone.
func (svc *Service) SignOut(_ context.Context, id string) {
	svc.publisher.Publish(IdentityChange{UserID: id, Kind: IdentitySignedOut, At: core.NowFunc()})
}

func (svc *Service) publish(usr User, kind IdentityChangeKind) {
	svc.publisher.Publish(IdentityChange{
		UserID:        usr.ID,
		Kind:          kind,
		Privilege:     privilege.Resolve(usr.Privilege),
		SocietyID:     usr.SocietyID,
		SocietyRole:   usr.SocietyRole,
		EmailVerified: usr.EmailVerified,
		At:            core.NowFunc(),
	})
}

// Password reset

// RequestPasswordReset mails a reset link to the user; unknown emails are silently ignored.
func (svc *Service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		if core.IsNotFound(err) {
			return nil
		}
		return errors.Wrap(err, "finding user by email")
	}
	svc.sendPasswordResetMail(usr)
	return nil
}

func (svc *Service) ResetPassword(ctx context.Context, data ResetUserPassword) error {
	usr, err := svc.userFromUID(ctx, data.UID, errInvalidResetLink)
	if err != nil {
		return err
	}
	if err = verifyToken(usr, PasswordResetToken, data.Token, []byte(svc.conf.SecretKey), svc.conf.PasswordResetTimeoutDelta); err != nil {
		return core.NewValidationError(errInvalidResetLink)
	}
	if err = usr.SetPassword(data.Password); err != nil {
		return errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = core.NowFunc()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return errors.Wrap(err, "updating user")
}

// SetPassword replaces the password of the user with the given email without any token; used by the admin CLI.
func (svc *Service) SetPassword(ctx context.Context, email, pwd string) (User, error) {
	usr, err := svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		return User{}, errors.Wrap(err, "finding user by email")
	}
	if err = usr.SetPassword(pwd); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *Service) sendPasswordResetMail(usr User) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Password Reset",
		TemplateName: "password_reset",
		TemplateData: tokenMailData{
			Name:  usr.Name,
			UID:   EncodeUID(usr),
			Token: makeToken(usr, PasswordResetToken, []byte(svc.conf.SecretKey)),
		},
	})
}

// Email verification

func (svc *Service) RequestEmailVerification(ctx context.Context, id string) error {
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		return errors.Wrap(err, "finding user by ID")
	}
	if usr.EmailVerified {
		return core.NewValidationError(ErrEmailAlreadyVerified)
	}
	svc.sendVerificationMail(usr)
	return nil
}

func (svc *Service) VerifyEmail(ctx context.Context, data VerifyUserEmail) (User, error) {
	usr, err := svc.userFromUID(ctx, data.UID, errInvalidVerifyLink)
	if err != nil {
		return User{}, err
	}
	if usr.EmailVerified {
		return usr, nil
	}
	if err = verifyToken(usr, EmailVerificationToken, data.Token, []byte(svc.conf.SecretKey), svc.conf.EmailVerificationTimeoutDelta); err != nil {
		return User{}, core.NewValidationError(errInvalidVerifyLink)
	}

	usr.EmailVerified = true
	usr.UpdatedAt = core.NowFunc()
	if usr, err = svc.repo.UpdateUser(ctx, usr); err != nil {
		return User{}, errors.Wrap(err, "updating user")
	}
	svc.publish(usr, IdentityEmailVerified)
	return usr, nil
}

func (svc *Service) sendVerificationMail(usr User) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Verify your email",
		TemplateName: "verify_email",
		TemplateData: tokenMailData{
			Name:  usr.Name,
			UID:   EncodeUID(usr),
			Token: makeToken(usr, EmailVerificationToken, []byte(svc.conf.SecretKey)),
		},
	})
}

func (svc *Service) userFromUID(ctx context.Context, uid string, invalidErr error) (User, error) {
	id, err := decodeUID(uid)
	if err != nil {
		return User{}, core.NewValidationError(invalidErr)
	}
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		if core.IsNotFound(err) {
			return User{}, core.NewValidationError(invalidErr)
		}
		return User{}, errors.Wrap(err, "finding user by ID")
	}
	return usr, nil
}

type tokenMailData struct {
	Name  string
	UID   string
	Token string
}
