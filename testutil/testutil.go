// Package testutil holds fixtures shared by the tests of several packages.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/iems/core"
	"github.com/trezcool/iems/core/event"
	"github.com/trezcool/iems/core/privilege"
	"github.com/trezcool/iems/core/society"
	"github.com/trezcool/iems/core/user"
)

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, email, pwd string,
	level privilege.Level,
	verified bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:          name,
		Email:         email,
		Privilege:     level,
		EmailVerified: verified,
		CreatedAt:     tstamp,
		UpdatedAt:     tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateSociety(t *testing.T, repo society.Repository, name, createdBy string) society.Society {
	now := time.Now().UTC()
	soc, err := repo.CreateSociety(context.Background(), society.Society{
		ID:          society.Slugify(name),
		Name:        name,
		MaxHeads:    society.MaxHeads,
		SocialLinks: society.SocialLinks{},
		EventIDs:    []string{},
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		t.Fatalf("CreateSociety() failed: %v", err)
	}
	return soc
}

// MakeHead puts usr in the role slot of soc, in both the user and the society.
func MakeHead(t *testing.T, usrRepo user.Repository, socRepo society.Repository, usr user.User, soc society.Society, role society.Role) (user.User, society.Society) {
	ctx := context.Background()
	roleName := string(role)
	if err := usrRepo.UpdatePrivilege(ctx, usr.ID, privilege.SocietyHead, &soc.ID, &roleName, time.Now().UTC()); err != nil {
		t.Fatalf("MakeHead() failed: %v", err)
	}
	soc.Heads.Set(role, &usr.ID)
	if err := socRepo.UpdateHeads(ctx, soc.ID, soc.Heads, time.Now().UTC()); err != nil {
		t.Fatalf("MakeHead() failed: %v", err)
	}

	var err error
	if usr, err = usrRepo.GetUserByID(ctx, usr.ID); err != nil {
		t.Fatalf("MakeHead() failed: %v", err)
	}
	if soc, err = socRepo.GetSociety(ctx, soc.ID); err != nil {
		t.Fatalf("MakeHead() failed: %v", err)
	}
	return usr, soc
}

// CreateEvent creates an event of soc and links it to the society.
func CreateEvent(
	t *testing.T,
	evRepo event.Repository,
	socRepo society.Repository,
	soc society.Society,
	title string,
	status event.Status,
	startsAt time.Time,
) event.Event {
	ctx := context.Background()
	now := time.Now().UTC()
	ev, err := evRepo.CreateEvent(ctx, event.Event{
		ID:          uuid.New().String(),
		SocietyID:   soc.ID,
		Title:       title,
		StartsAt:    startsAt.UTC(),
		Status:      status,
		Tags:        []string{},
		SubEventIDs: []string{},
		SpeakerIDs:  []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		t.Fatalf("CreateEvent() failed: %v", err)
	}
	if err = socRepo.AddEventID(ctx, soc.ID, ev.ID); err != nil {
		t.Fatalf("CreateEvent() failed: %v", err)
	}
	return ev
}

// FreezeTime replaces core.NowFunc with a fixed clock until the test ends.
func FreezeTime(t *testing.T, now time.Time) {
	orig := core.NowFunc
	core.NowFunc = func() time.Time { return now.UTC() }
	t.Cleanup(func() { core.NowFunc = orig })
}
