package user

import (
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/iems/core"
	"github.com/trezcool/iems/core/privilege"
)

type User struct {
	ID            string          `json:"id" db:"id"`
	Name          string          `json:"name" db:"name"`
	Email         string          `json:"email" db:"email"`
	Privilege     privilege.Level `json:"privilege" db:"privilege"`
	EmailVerified bool            `json:"email_verified" db:"email_verified"`
	SocietyID     *string         `json:"society_id" db:"society_id"`
	SocietyRole   *string         `json:"society_role" db:"society_role"`
	PasswordHash  []byte          `json:"-" db:"password_hash"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"` // UTC
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"` // UTC
	LastLogin     *time.Time      `json:"last_login" db:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

// Actor returns the resolved identity of u. Unknown privilege levels resolve to privilege.NormalUser.
func (u User) Actor() privilege.Actor {
	actor := privilege.Actor{UserID: u.ID, Privilege: privilege.Resolve(u.Privilege)}
	if actor.Privilege == privilege.SocietyHead {
		actor.SocietyID = core.StringVal(u.SocietyID)
	}
	return actor
}

func (u User) IsAdmin() bool { return privilege.IsAdmin(privilege.Resolve(u.Privilege)) }

// NewUser contains information needed to sign up a new User.
type NewUser struct {
	Name            string `json:"name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (nu *NewUser) Validate(validate *validator.Validate) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	return validate.Struct(nu)
}

// UpdateProfile defines what information a User may change on their own profile.
type UpdateProfile struct {
	Name string `json:"name" validate:"required"`
}

func (up *UpdateProfile) Validate(validate *validator.Validate) error {
	up.Name = core.CleanString(up.Name)
	return validate.Struct(up)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

type VerifyUserEmail struct {
	Token string `json:"token,omitempty" validate:"required"`
	UID   string `json:"uid,omitempty" validate:"required"`
}

func (ve VerifyUserEmail) Validate(validate *validator.Validate) error { return validate.Struct(ve) }

type QueryFilter struct {
	Search        string `query:"search"`
	Privileges    []int  `query:"privilege"`
	EmailVerified *bool  `query:"email_verified"`
	SocietyID     string `query:"society_id"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Privileges == nil && qf.EmailVerified == nil && qf.SocietyID == ""
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.SocietyID = core.CleanString(qf.SocietyID, true /* lower */)
}

// IdentityChangeKind tells subscribers why a user's identity changed.
type IdentityChangeKind string

const (
	IdentityPrivilegeChanged IdentityChangeKind = "privilege_changed"
	IdentityEmailVerified    IdentityChangeKind = "email_verified"
	IdentityProfileUpdated   IdentityChangeKind = "profile_updated"
	IdentitySignedOut        IdentityChangeKind = "signed_out"
)

type IdentityChange struct {
	UserID        string             `json:"user_id"`
	Kind          IdentityChangeKind `json:"kind"`
	Privilege     privilege.Level    `json:"privilege"`
	SocietyID     *string            `json:"society_id"`
	SocietyRole   *string            `json:"society_role"`
	EmailVerified bool               `json:"email_verified"`
	At            time.Time          `json:"at"`
}

// IdentityPublisher broadcasts identity changes to the current subscribers.
type IdentityPublisher interface {
	Publish(change IdentityChange)
}

type nopPublisher struct{}

func (nopPublisher) Publish(IdentityChange) {}
