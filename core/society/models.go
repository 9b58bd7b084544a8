package society

import (
	"database/sql/driver"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/iems/core"
)

// MaxHeads is the number of head slots of every society.
const MaxHeads = 3

// Role is a head slot of a society.
type Role string

const (
	RoleCEO Role = "CEO"
	RoleCFO Role = "CFO"
	RoleCOO Role = "COO"
)

var Roles = []Role{RoleCEO, RoleCFO, RoleCOO}

// ParseRole returns the Role named s, case-insensitively.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(core.CleanString(s)))
	for _, role := range Roles {
		if r == role {
			return role, true
		}
	}
	return "", false
}

// Heads maps every role slot to the id of the user holding it, nil when vacant.
type Heads struct {
	CEO *string `json:"CEO"`
	CFO *string `json:"CFO"`
	COO *string `json:"COO"`
}

func (h Heads) Get(role Role) *string {
	switch role {
	case RoleCEO:
		return h.CEO
	case RoleCFO:
		return h.CFO
	case RoleCOO:
		return h.COO
	}
	return nil
}

func (h *Heads) Set(role Role, userID *string) {
	switch role {
	case RoleCEO:
		h.CEO = userID
	case RoleCFO:
		h.CFO = userID
	case RoleCOO:
		h.COO = userID
	}
}

// RoleOf returns the slot held by userID, if any.
func (h Heads) RoleOf(userID string) (Role, bool) {
	for _, role := range Roles {
		if id := h.Get(role); id != nil && *id == userID {
			return role, true
		}
	}
	return "", false
}

// SocialLinks maps a network name (instagram, linkedin, website...) to a URL.
type SocialLinks map[string]string

func (sl SocialLinks) Value() (driver.Value, error) {
	if sl == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(sl)
}

func (sl *SocialLinks) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*sl = SocialLinks{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.Errorf("cannot scan %T into SocialLinks", src)
	}
	links := make(SocialLinks)
	if err := json.Unmarshal(data, &links); err != nil {
		return err
	}
	*sl = links
	return nil
}

func (sl SocialLinks) clone() SocialLinks {
	c := make(SocialLinks, len(sl))
	for k, v := range sl {
		c[k] = v
	}
	return c
}

type Society struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Heads        Heads       `json:"heads"`
	MaxHeads     int         `json:"max_heads"`
	Description  string      `json:"description"`
	ContactEmail string      `json:"contact_email"`
	SocialLinks  SocialLinks `json:"social_links"`
	LogoURL      string      `json:"logo_url"`
	EventIDs     []string    `json:"event_ids"`
	CreatedBy    string      `json:"created_by"`
	CreatedAt    time.Time   `json:"created_at"` // UTC
	UpdatedAt    time.Time   `json:"updated_at"` // UTC
}

// Clone returns a deep copy of s.
func (s Society) Clone() Society {
	c := s
	c.SocialLinks = s.SocialLinks.clone()
	c.EventIDs = append(make([]string, 0, len(s.EventIDs)), s.EventIDs...)
	return c
}

// slugSeparatorRegex matches runs of whitespace and of the characters that would break a URL path segment.
var slugSeparatorRegex = regexp.MustCompile(`[\s/\\?#%]+`)

// Slugify derives the key of a society from its name: lowercased, separator runs collapsed to "-".
func Slugify(name string) string {
	slug := slugSeparatorRegex.ReplaceAllString(core.CleanString(name, true /* lower */), "-")
	return strings.Trim(slug, "-")
}

// NewSociety contains information needed to create a new Society.
type NewSociety struct {
	Name string `json:"name" validate:"required,max=100"`
}

func (ns *NewSociety) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	return validate.Struct(ns)
}

// UpdateSociety defines what information may be provided to modify an existing Society.
// nil fields are left untouched.
type UpdateSociety struct {
	Description  *string     `json:"description" validate:"omitempty,max=5000"`
	ContactEmail *string     `json:"contact_email" validate:"omitempty,email"`
	SocialLinks  SocialLinks `json:"social_links" validate:"omitempty,dive,keys,notblank,endkeys,httpurl"`
}

func (us *UpdateSociety) Validate(validate *validator.Validate) error {
	if us.Description != nil {
		desc := core.CleanString(*us.Description)
		us.Description = &desc
	}
	if us.ContactEmail != nil {
		email := core.CleanString(*us.ContactEmail, true /* lower */)
		us.ContactEmail = &email
	}
	return validate.Struct(us)
}

// AssignHead is the request to fill a head slot.
type AssignHead struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"required,oneof=CEO CFO COO"`
}

func (ah *AssignHead) Validate(validate *validator.Validate) error {
	ah.Email = core.CleanString(ah.Email, true /* lower */)
	ah.Role = strings.ToUpper(core.CleanString(ah.Role))
	return validate.Struct(ah)
}

// HeadInfo is the display-friendly identity of a head.
type HeadInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

type AssignResult struct {
	Heads Heads    `json:"heads"`
	Head  HeadInfo `json:"head"`
}
