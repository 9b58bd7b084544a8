// Package privilege defines the access levels of users and the rules deriving edit rights from them.
package privilege

// Level is the ordinal access level of a user.
type Level int

const (
	Unset       Level = -1 // no level stored
	NormalUser  Level = 0
	SocietyHead Level = 1
	Admin       Level = 2
)

var names = map[Level]string{
	NormalUser:  "user",
	SocietyHead: "society_head",
	Admin:       "admin",
}

// Valid reports whether l is one of the known levels.
func (l Level) Valid() bool {
	_, ok := names[l]
	return ok
}

func (l Level) String() string {
	if name, ok := names[l]; ok {
		return name
	}
	return "unknown"
}

// Resolve maps unknown levels to NormalUser.
func Resolve(l Level) Level {
	if !l.Valid() {
		return NormalUser
	}
	return l
}

func IsNormalUser(l Level) bool     { return l == NormalUser }
func IsSocietyHead(l Level) bool    { return l == SocietyHead }
func IsAdmin(l Level) bool          { return l == Admin }
func CanManageSociety(l Level) bool { return l >= SocietyHead }

// Actor is the resolved identity of a caller. The zero Actor is anonymous.
type Actor struct {
	UserID    string
	Privilege Level
	SocietyID string // set only for society heads
}

func (a Actor) IsAnonymous() bool { return a.UserID == "" }

// CanEdit reports whether actor may mutate a record owned by the society ownerSocietyID.
// Admins may edit anything; society heads only their own society's records.
func CanEdit(actor Actor, ownerSocietyID string) bool {
	if actor.IsAnonymous() {
		return false
	}
	switch actor.Privilege {
	case Admin:
		return true
	case SocietyHead:
		return actor.SocietyID != "" && actor.SocietyID == ownerSocietyID
	default:
		return false
	}
}
