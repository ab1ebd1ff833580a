package guild

import (
	"encoding/json"
	"fmt"
)

// Role is a member's role inside a guild.
type Role string

const (
	RoleGuildMaster Role = "Guild Master"
	RoleViceMaster  Role = "Vice Master"
	RoleMember      Role = "Member"
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleGuildMaster, RoleViceMaster, RoleMember:
		return true
	}
	return false
}

// Level is the seniority tier of a plain Member: 1 is highest, 3 lowest.
// The zero value means "no level".
type Level int

const (
	LevelNone Level = 0
	Level1    Level = 1
	Level2    Level = 2
	Level3    Level = 3
)

func (l Level) valid() bool { return l >= Level1 && l <= Level3 }

// Position is a (role, level) pair where level is present if and only if
// the role is Member. The fields are unexported so that illegal
// combinations cannot be built outside this package.
type Position struct {
	role  Role
	level Level
}

// GuildMaster returns the leader position.
func GuildMaster() Position { return Position{role: RoleGuildMaster} }

// ViceMaster returns the deputy position.
func ViceMaster() Position { return Position{role: RoleViceMaster} }

// MemberAt returns a Member position at the given level.
func MemberAt(level Level) (Position, error) {
	if !level.valid() {
		return Position{}, errorf(ErrValidation, "member level must be 1..3, got %d", level)
	}
	return Position{role: RoleMember, level: level}, nil
}

// MustMember is MemberAt for constant levels; it panics on an invalid level.
func MustMember(level Level) Position {
	p, err := MemberAt(level)
	if err != nil {
		panic(err)
	}
	return p
}

// PositionOf decodes a persisted (role, level) pair. A level of 0 means the
// level is absent.
func PositionOf(role Role, level Level) (Position, error) {
	switch role {
	case RoleGuildMaster, RoleViceMaster:
		if level != LevelNone {
			return Position{}, errorf(ErrValidation, "%s cannot carry a level", role)
		}
		return Position{role: role}, nil
	case RoleMember:
		return MemberAt(level)
	default:
		return Position{}, errorf(ErrValidation, "unknown role %q", role)
	}
}

// Role returns the position's role.
func (p Position) Role() Role { return p.role }

// Level returns the member level and whether one is present.
func (p Position) Level() (Level, bool) { return p.level, p.level != LevelNone }

// IsZero reports whether p was never initialised.
func (p Position) IsZero() bool { return p.role == "" }

// Label is the display label, e.g. "Member Lv.2".
func (p Position) Label() string { return RoleLabel(p.role, p.level) }

// Score is the seniority sort key; higher is more senior.
func (p Position) Score() int { return HierarchyScore(p.role, p.level) }

func (p Position) String() string { return p.Label() }

type positionJSON struct {
	Role  Role   `json:"role"`
	Level *Level `json:"level,omitempty"`
}

func (p Position) MarshalJSON() ([]byte, error) {
	out := positionJSON{Role: p.role}
	if p.level != LevelNone {
		l := p.level
		out.Level = &l
	}
	return json.Marshal(out)
}

func (p *Position) UnmarshalJSON(b []byte) error {
	var in positionJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	var lvl Level
	if in.Level != nil {
		lvl = *in.Level
	}
	dec, err := PositionOf(in.Role, lvl)
	if err != nil {
		return err
	}
	*p = dec
	return nil
}

// RoleLabel formats a role for display. A Member with no level is shown
// as plain "Member".
func RoleLabel(role Role, level Level) string {
	switch role {
	case RoleGuildMaster, RoleViceMaster:
		return string(role)
	case RoleMember:
		if level == LevelNone {
			return "Member"
		}
		return fmt.Sprintf("Member Lv.%d", level)
	default:
		return string(role)
	}
}

// HierarchyScore maps a position to a sort key: Guild Master 1000, Vice
// Master 500, Member 100-level*10 (50 when the level is absent).
func HierarchyScore(role Role, level Level) int {
	switch role {
	case RoleGuildMaster:
		return 1000
	case RoleViceMaster:
		return 500
	case RoleMember:
		if level == LevelNone {
			return 50
		}
		return 100 - int(level)*10
	default:
		return 0
	}
}
