package guild

import "fmt"

// Action is a guild operation subject to role checks.
type Action string

const (
	ActionInvite         Action = "invite"
	ActionKick           Action = "kick"
	ActionPromote        Action = "promote"
	ActionDemote         Action = "demote"
	ActionManageSettings Action = "manage_settings"
	ActionDisband        Action = "disband"
)

// CanPerform reports whether a member holding actor may perform action,
// optionally against a member holding target. Pass "" when there is no
// target.
func CanPerform(action Action, actor, target Role) bool {
	switch action {
	case ActionManageSettings, ActionDisband:
		return actor == RoleGuildMaster
	case ActionPromote, ActionDemote, ActionKick:
		if actor == RoleGuildMaster {
			return true
		}
		return actor == RoleViceMaster && target == RoleMember
	case ActionInvite:
		return actor == RoleGuildMaster || actor == RoleViceMaster
	default:
		return false
	}
}

// Option is one reachable position offered by PromotionOptions or
// DemotionOptions.
type Option struct {
	Position Position `json:"position"`
	Label    string   `json:"label"`
}

// Transfer reports whether taking this option hands over leadership.
func (o Option) Transfer() bool { return o.Position.Role() == RoleGuildMaster }

// PromotionOptions lists the positions a member at current may be promoted
// to by someone holding actor.
//
// A Member above level 1 may move up one level; a Guild Master may also
// propose any Member for Vice Master. Only the Guild Master can propose a
// Vice Master for Guild Master, which is a leadership transfer.
func PromotionOptions(current Position, actor Role) []Option {
	var opts []Option
	switch current.role {
	case RoleMember:
		if current.level > Level1 {
			next := Position{role: RoleMember, level: current.level - 1}
			opts = append(opts, Option{Position: next, Label: fmt.Sprintf("Member Level %d", next.level)})
		}
		if actor == RoleGuildMaster {
			opts = append(opts, Option{Position: ViceMaster(), Label: "Vice Master"})
		}
	case RoleViceMaster:
		if actor == RoleGuildMaster {
			opts = append(opts, Option{Position: GuildMaster(), Label: "Guild Master (Transfer Leadership)"})
		}
	}
	return opts
}

// DemotionOptions lists the positions a member at current may be demoted
// to. A Guild Master has none; leadership only moves by transfer.
func DemotionOptions(current Position) []Option {
	switch current.role {
	case RoleViceMaster:
		return []Option{{Position: Position{role: RoleMember, level: Level1}, Label: "Member Level 1"}}
	case RoleMember:
		if current.level != LevelNone && current.level < Level3 {
			next := Position{role: RoleMember, level: current.level + 1}
			return []Option{{Position: next, Label: fmt.Sprintf("Member Level %d", next.level)}}
		}
	}
	return nil
}

func findOption(opts []Option, want Position) (Option, bool) {
	for _, o := range opts {
		if o.Position == want {
			return o, true
		}
	}
	return Option{}, false
}
