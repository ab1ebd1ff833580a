package guild

import "fmt"

// Rank is a user's marketplace rank on the fixed scale G < F < ... < SSS.
type Rank string

// Ranks lists the scale from lowest to highest.
var Ranks = []Rank{"G", "F", "E", "D", "C", "B", "A", "S", "SS", "SSS"}

// Index returns the position of r on the scale, or -1 if r is unknown.
func (r Rank) Index() int {
	for i, v := range Ranks {
		if v == r {
			return i
		}
	}
	return -1
}

// Valid reports whether r is on the scale.
func (r Rank) Valid() bool { return r.Index() >= 0 }

// AtLeast reports whether r is at or above min.
func (r Rank) AtLeast(min Rank) bool { return r.Index() >= min.Index() }

const (
	ReasonClosed   = "closed guild, invitation required"
	ReasonCapacity = "at capacity"
)

// Eligibility is the outcome of CanJoin.
type Eligibility struct {
	CanJoin bool   `json:"can_join"`
	Reason  string `json:"reason,omitempty"`
}

// CanJoin decides whether a user with the given rank may join g through
// the public path. It does not modify g.
func CanJoin(g *Guild, userRank Rank) Eligibility {
	if !g.IsOpen {
		return Eligibility{Reason: ReasonClosed}
	}
	if g.Full() {
		return Eligibility{Reason: ReasonCapacity}
	}
	if !userRank.AtLeast(g.MinRankRequired) {
		return Eligibility{Reason: fmt.Sprintf("minimum rank required: %s", g.MinRankRequired)}
	}
	return Eligibility{CanJoin: true}
}

// err converts a negative outcome into the matching error kind.
func (e Eligibility) err() error {
	switch {
	case e.CanJoin:
		return nil
	case e.Reason == ReasonCapacity:
		return errorf(ErrConflict, "%s", e.Reason)
	default:
		return errorf(ErrPermission, "%s", e.Reason)
	}
}
