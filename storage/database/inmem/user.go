package inmemdb

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/iems/core"
	"github.com/trezcool/iems/core/privilege"
	"github.com/trezcool/iems/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db}
}

func cloneUser(usr user.User) user.User {
	c := usr
	if usr.SocietyID != nil {
		id := *usr.SocietyID
		c.SocietyID = &id
	}
	if usr.SocietyRole != nil {
		role := *usr.SocietyRole
		c.SocietyRole = &role
	}
	if usr.LastLogin != nil {
		t := *usr.LastLogin
		c.LastLogin = &t
	}
	c.PasswordHash = append([]byte(nil), usr.PasswordHash...)
	return c
}

func (repo *userRepository) findByEmail(email string) (user.User, bool) {
	for _, usr := range repo.db.t.users {
		if usr.Email == email {
			return usr, true
		}
	}
	return user.User{}, false
}

func (repo *userRepository) EmailExists(_ context.Context, email string, exec ...core.DBExecutor) (bool, error) {
	defer repo.db.acquire(exec)()
	_, found := repo.findByEmail(email)
	return found, nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	defer repo.db.acquire(exec)()

	if _, found := repo.findByEmail(usr.Email); found {
		return user.User{}, user.ErrEmailExists
	}
	usr.ID = uuid.New().String()
	repo.db.t.users[usr.ID] = cloneUser(usr)
	return cloneUser(usr), nil
}

func (repo *userRepository) GetUserByID(_ context.Context, id string, exec ...core.DBExecutor) (user.User, error) {
	defer repo.db.acquire(exec)()

	if usr, ok := repo.db.t.users[id]; ok {
		return cloneUser(usr), nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByEmail(_ context.Context, email string, exec ...core.DBExecutor) (user.User, error) {
	defer repo.db.acquire(exec)()

	if usr, found := repo.findByEmail(email); found {
		return cloneUser(usr), nil
	}
	return user.User{}, user.ErrNotFound
}

// GetUserByEmailForUpdate is GetUserByEmail: transactions already hold the store lock.
func (repo *userRepository) GetUserByEmailForUpdate(ctx context.Context, email string, exec ...core.DBExecutor) (user.User, error) {
	return repo.GetUserByEmail(ctx, email, exec...)
}

func matchUser(usr user.User, filter *user.QueryFilter) bool {
	if filter == nil {
		return true
	}
	if filter.Search != "" {
		search := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(usr.Name), search) && !strings.Contains(usr.Email, search) {
			return false
		}
	}
	if len(filter.Privileges) > 0 {
		found := false
		for _, p := range filter.Privileges {
			if privilege.Resolve(usr.Privilege) == privilege.Level(p) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.EmailVerified != nil && usr.EmailVerified != *filter.EmailVerified {
		return false
	}
	if filter.SocietyID != "" && core.StringVal(usr.SocietyID) != filter.SocietyID {
		return false
	}
	return true
}

func (repo *userRepository) QueryUsers(_ context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	defer repo.db.acquire(exec)()

	users := make([]user.User, 0, len(repo.db.t.users))
	for _, usr := range repo.db.t.users {
		if matchUser(usr, filter) {
			users = append(users, cloneUser(usr))
		}
	}

	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at", Ascending: true}}
	}
	orderBy(len(users), func(i, j int) { users[i], users[j] = users[j], users[i] }, ordering, func(i, j int, field string) int {
		switch field {
		case "name":
			return compareStrings(users[i].Name, users[j].Name)
		case "email":
			return compareStrings(users[i].Email, users[j].Email)
		case "created_at":
			return compareTimes(users[i].CreatedAt, users[j].CreatedAt)
		case "privilege":
			return compareInts(int(users[i].Privilege), int(users[j].Privilege))
		}
		return 0
	})
	return users, nil
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	defer repo.db.acquire(exec)()

	orig, ok := repo.db.t.users[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	updated := cloneUser(orig)
	updated.Name = usr.Name
	updated.EmailVerified = usr.EmailVerified
	if usr.PasswordHash != nil {
		updated.PasswordHash = append([]byte(nil), usr.PasswordHash...)
	}
	if usr.LastLogin != nil {
		t := *usr.LastLogin
		updated.LastLogin = &t
	}
	updated.UpdatedAt = usr.UpdatedAt
	repo.db.t.users[usr.ID] = updated
	return cloneUser(updated), nil
}

func (repo *userRepository) UpdatePrivilege(_ context.Context, id string, level privilege.Level, societyID, role *string, updatedAt time.Time, exec ...core.DBExecutor) error {
	defer repo.db.acquire(exec)()

	usr, ok := repo.db.t.users[id]
	if !ok {
		return user.ErrNotFound
	}
	usr = cloneUser(usr)
	usr.Privilege = level
	usr.SocietyID = societyID
	usr.SocietyRole = role
	usr.UpdatedAt = updatedAt
	repo.db.t.users[id] = cloneUser(usr)
	return nil
}

func (repo *userRepository) CountUsersByPrivilege(_ context.Context, exec ...core.DBExecutor) (map[privilege.Level]int, error) {
	defer repo.db.acquire(exec)()

	counts := make(map[privilege.Level]int)
	for _, usr := range repo.db.t.users {
		counts[privilege.Resolve(usr.Privilege)]++
	}
	return counts, nil
}
