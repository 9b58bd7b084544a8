package event

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/iems/core"
)

// Status is the publication status of an event. It is always stored lowercase.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusConcluded Status = "concluded"
)

var Statuses = []Status{StatusDraft, StatusPublished, StatusConcluded}

// NormalizeStatus lowercases s and reports whether it names a known Status.
func NormalizeStatus(s string) (Status, bool) {
	st := Status(core.CleanString(s, true /* lower */))
	for _, known := range Statuses {
		if st == known {
			return st, true
		}
	}
	return st, false
}

// Venue is where an event takes place. It is decoded from either a structured object or a plain string,
// the latter being kept as the address.
type Venue struct {
	Building string `json:"building,omitempty"`
	Room     string `json:"room,omitempty"`
	Address  string `json:"address,omitempty"`
	MapLink  string `json:"map_link,omitempty" validate:"omitempty,httpurl"`
}

func (v Venue) IsZero() bool { return v == Venue{} }

func (v *Venue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = Venue{}
		return nil
	}
	if data[0] == '"' {
		var addr string
		if err := json.Unmarshal(data, &addr); err != nil {
			return err
		}
		*v = Venue{Address: core.CleanString(addr)}
		return nil
	}
	type plain Venue
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*v = Venue(p)
	return nil
}

func (v Venue) Value() (driver.Value, error) {
	type plain Venue
	return json.Marshal(plain(v))
}

func (v *Venue) Scan(src interface{}) error {
	return scanJSON(src, v)
}

type Metrics struct {
	Views     int `json:"views"`
	Likes     int `json:"likes"`
	Wishlists int `json:"wishlists"`
	Shares    int `json:"shares"`
}

type Event struct {
	ID               string     `json:"id"`
	SocietyID        string     `json:"society_id"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Type             string     `json:"type"`
	StartsAt         time.Time  `json:"starts_at"` // UTC
	EndsAt           *time.Time `json:"ends_at"`   // UTC
	Venue            Venue      `json:"venue"`
	RegistrationLink string     `json:"registration_link"`
	ImageURL         string     `json:"image_url"`
	Status           Status     `json:"status"`
	Metrics          Metrics    `json:"metrics"`
	Tags             []string   `json:"tags"`
	SubEventIDs      []string   `json:"sub_event_ids"`
	SpeakerIDs       []string   `json:"speaker_ids"`
	CreatedBy        string     `json:"created_by"`
	CreatedAt        time.Time  `json:"created_at"` // UTC
	UpdatedAt        time.Time  `json:"updated_at"` // UTC
}

// Clone returns a deep copy of ev.
func (ev Event) Clone() Event {
	c := ev
	c.Tags = cloneStrings(ev.Tags)
	c.SubEventIDs = cloneStrings(ev.SubEventIDs)
	c.SpeakerIDs = cloneStrings(ev.SpeakerIDs)
	if ev.EndsAt != nil {
		t := *ev.EndsAt
		c.EndsAt = &t
	}
	return c
}

// NewEvent contains information needed to create a new Event.
type NewEvent struct {
	SocietyID        string         `json:"society_id" validate:"required"`
	Title            string         `json:"title" validate:"required,max=200"`
	Description      string         `json:"description" validate:"max=10000"`
	Type             string         `json:"type" validate:"max=50"`
	StartsAt         core.Timestamp `json:"starts_at"`
	EndsAt           core.Timestamp `json:"ends_at"`
	Venue            Venue          `json:"venue"`
	RegistrationLink string         `json:"registration_link" validate:"omitempty,httpurl"`
	Status           string         `json:"status"`
	Tags             []string       `json:"tags" validate:"max=20,dive,max=50"`
	SpeakerIDs       []string       `json:"speaker_ids"`
}

func (ne *NewEvent) Validate(validate *validator.Validate) error {
	ne.SocietyID = core.CleanString(ne.SocietyID, true /* lower */)
	ne.Title = core.CleanString(ne.Title)
	ne.Description = core.CleanString(ne.Description)
	ne.Type = core.CleanString(ne.Type)
	ne.RegistrationLink = core.CleanString(ne.RegistrationLink)
	ne.Tags = core.CleanStrings(ne.Tags, true /* lower */)
	ne.SpeakerIDs = core.CleanStrings(ne.SpeakerIDs)
	if err := validate.Struct(ne); err != nil {
		return err
	}

	var flds []core.FieldError
	if ne.StartsAt.IsZero() {
		flds = append(flds, core.FieldError{Field: "starts_at", Error: "this field is required"})
	} else if !ne.EndsAt.IsZero() && ne.EndsAt.Before(ne.StartsAt.Time) {
		flds = append(flds, core.FieldError{Field: "ends_at", Error: errEndsBeforeStart.Error()})
	}
	if ne.Status == "" {
		ne.Status = string(StatusDraft)
	}
	if st, ok := NormalizeStatus(ne.Status); ok {
		ne.Status = string(st)
	} else {
		flds = append(flds, core.FieldError{Field: "status", Error: errInvalidStatus.Error()})
	}
	if len(flds) > 0 {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

// UpdateEvent defines what information may be provided to modify an existing Event.
// nil fields are left untouched.
type UpdateEvent struct {
	Title            *string         `json:"title" validate:"omitempty,notblank,max=200"`
	Description      *string         `json:"description" validate:"omitempty,max=10000"`
	Type             *string         `json:"type" validate:"omitempty,max=50"`
	StartsAt         *core.Timestamp `json:"starts_at"`
	EndsAt           *core.Timestamp `json:"ends_at"`
	Venue            *Venue          `json:"venue"`
	RegistrationLink *string         `json:"registration_link" validate:"omitempty,httpurl"`
	Status           *string         `json:"status"`
	Tags             *[]string       `json:"tags"`
	SpeakerIDs       *[]string       `json:"speaker_ids"`
}

// Changes is the normalized diff of an event update. Only non-nil fields are persisted.
type Changes struct {
	Title            *string
	Description      *string
	Type             *string
	StartsAt         *time.Time
	EndsAt           *time.Time
	Venue            *Venue
	RegistrationLink *string
	ImageURL         *string
	Status           *Status
	Tags             *[]string
	SpeakerIDs       *[]string
	UpdatedAt        time.Time
}

func (c Changes) IsEmpty() bool {
	return c.Title == nil && c.Description == nil && c.Type == nil && c.StartsAt == nil && c.EndsAt == nil &&
		c.Venue == nil && c.RegistrationLink == nil && c.ImageURL == nil && c.Status == nil && c.Tags == nil &&
		c.SpeakerIDs == nil
}

// Apply returns a copy of ev with the changes applied.
func (c Changes) Apply(ev Event) Event {
	ev = ev.Clone()
	if c.Title != nil {
		ev.Title = *c.Title
	}
	if c.Description != nil {
		ev.Description = *c.Description
	}
	if c.Type != nil {
		ev.Type = *c.Type
	}
	if c.StartsAt != nil {
		ev.StartsAt = *c.StartsAt
	}
	if c.EndsAt != nil {
		t := *c.EndsAt
		ev.EndsAt = &t
	}
	if c.Venue != nil {
		ev.Venue = *c.Venue
	}
	if c.RegistrationLink != nil {
		ev.RegistrationLink = *c.RegistrationLink
	}
	if c.ImageURL != nil {
		ev.ImageURL = *c.ImageURL
	}
	if c.Status != nil {
		ev.Status = *c.Status
	}
	if c.Tags != nil {
		ev.Tags = cloneStrings(*c.Tags)
	}
	if c.SpeakerIDs != nil {
		ev.SpeakerIDs = cloneStrings(*c.SpeakerIDs)
	}
	if !c.UpdatedAt.IsZero() {
		ev.UpdatedAt = c.UpdatedAt
	}
	return ev
}

// Validate cleans the submitted fields and turns them into Changes.
func (ue *UpdateEvent) Validate(validate *validator.Validate) (Changes, error) {
	var c Changes
	if ue.Title != nil {
		title := core.CleanString(*ue.Title)
		ue.Title, c.Title = &title, &title
	}
	if ue.Description != nil {
		desc := core.CleanString(*ue.Description)
		ue.Description, c.Description = &desc, &desc
	}
	if ue.Type != nil {
		typ := core.CleanString(*ue.Type)
		ue.Type, c.Type = &typ, &typ
	}
	if ue.RegistrationLink != nil {
		link := core.CleanString(*ue.RegistrationLink)
		ue.RegistrationLink, c.RegistrationLink = &link, &link
	}
	if err := validate.Struct(ue); err != nil {
		return Changes{}, err
	}

	var flds []core.FieldError
	if ue.StartsAt != nil {
		if ue.StartsAt.IsZero() {
			flds = append(flds, core.FieldError{Field: "starts_at", Error: "this field cannot be blank"})
		} else {
			t := ue.StartsAt.UTC()
			c.StartsAt = &t
		}
	}
	if ue.EndsAt != nil && !ue.EndsAt.IsZero() {
		t := ue.EndsAt.UTC()
		c.EndsAt = &t
	}
	if ue.Venue != nil {
		venue := *ue.Venue
		if err := validate.Struct(venue); err != nil {
			return Changes{}, err
		}
		c.Venue = &venue
	}
	if ue.Status != nil {
		st, ok := NormalizeStatus(*ue.Status)
		if !ok {
			flds = append(flds, core.FieldError{Field: "status", Error: errInvalidStatus.Error()})
		} else {
			c.Status = &st
		}
	}
	if ue.Tags != nil {
		tags := core.CleanStrings(*ue.Tags, true /* lower */)
		if tags == nil {
			tags = []string{}
		}
		c.Tags = &tags
	}
	if ue.SpeakerIDs != nil {
		ids := core.CleanStrings(*ue.SpeakerIDs)
		if ids == nil {
			ids = []string{}
		}
		c.SpeakerIDs = &ids
	}
	if len(flds) > 0 {
		return Changes{}, core.NewValidationError(nil, flds...)
	}
	return c, nil
}

// Visibility restricts which draft events a query returns.
type Visibility struct {
	All       bool   // every status, every society
	SocietyID string // drafts of this society are visible too
}

type QueryFilter struct {
	SocietyID string    `query:"society_id"`
	Status    string    `query:"status"`
	Tag       string    `query:"tag"`
	From      time.Time `query:"-"` // StartsAt >= From
	To        time.Time `query:"-"` // StartsAt < To

	Visibility Visibility `query:"-"`
}

func (qf *QueryFilter) Clean() {
	qf.SocietyID = core.CleanString(qf.SocietyID, true /* lower */)
	qf.Status = core.CleanString(qf.Status, true /* lower */)
	qf.Tag = core.CleanString(qf.Tag, true /* lower */)
}

// Matches reports whether ev passes the filter.
func (qf *QueryFilter) Matches(ev Event) bool {
	if qf.SocietyID != "" && ev.SocietyID != qf.SocietyID {
		return false
	}
	if qf.Status != "" && string(ev.Status) != qf.Status {
		return false
	}
	if qf.Tag != "" && !containsString(ev.Tags, qf.Tag) {
		return false
	}
	if !qf.From.IsZero() && ev.StartsAt.Before(qf.From) {
		return false
	}
	if !qf.To.IsZero() && !ev.StartsAt.Before(qf.To) {
		return false
	}
	if !qf.Visibility.All && ev.Status == StatusDraft && (qf.Visibility.SocietyID == "" || ev.SocietyID != qf.Visibility.SocietyID) {
		return false
	}
	return true
}

func cloneStrings(ss []string) []string {
	if ss == nil {
		return nil
	}
	return append(make([]string, 0, len(ss)), ss...)
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func removeString(ss []string, s string) []string {
	kept := make([]string, 0, len(ss))
	for _, v := range ss {
		if v != s {
			kept = append(kept, v)
		}
	}
	return kept
}

func scanJSON(src interface{}, dest interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.Errorf("cannot scan %T into %T", src, dest)
	}
	return json.Unmarshal(data, dest)
}
