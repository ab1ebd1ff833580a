package guild

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gosimple/slug"
)

const (
	nameMinLen = 3
	nameMaxLen = 30
)

var guildNamePattern = regexp.MustCompile(`^[A-Za-z0-9 _-]+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("guildname", func(fl validator.FieldLevel) bool {
		return ValidateName(fl.Field().String()) == nil
	})
	_ = v.RegisterValidation("rank", func(fl validator.FieldLevel) bool {
		return Rank(fl.Field().String()).Valid()
	})
	return v
}

// Validator exposes the package validator so HTTP binding can share the
// custom tags.
func Validator() *validator.Validate { return validate }

// ValidateName checks a guild name: 3-30 characters drawn from letters,
// digits, spaces, hyphens and underscores, with at least one letter or
// digit so the name has a slug.
func ValidateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return errorf(ErrValidation, "guild name is required")
	case len(name) < nameMinLen:
		return errorf(ErrValidation, "guild name must be at least %d characters", nameMinLen)
	case len(name) > nameMaxLen:
		return errorf(ErrValidation, "guild name must be at most %d characters", nameMaxLen)
	case !guildNamePattern.MatchString(name):
		return errorf(ErrValidation, "guild name can only contain letters, numbers, spaces, hyphens, and underscores")
	case slug.Make(name) == "":
		return errorf(ErrValidation, "guild name must contain a letter or number")
	}
	return nil
}

// Settings are the founder-chosen options for a new guild. Zero values
// fall back to the service defaults.
type Settings struct {
	Description      string   `json:"description" validate:"max=500"`
	IsOpen           bool     `json:"is_open"`
	RequiresApproval bool     `json:"requires_approval"`
	MaxMembers       int      `json:"max_members" validate:"omitempty,min=1,max=1000"`
	MinRankRequired  Rank     `json:"min_rank_required" validate:"omitempty,rank"`
	Logo             string   `json:"logo" validate:"max=512"`
	BannerImage      string   `json:"banner_image" validate:"max=512"`
	PrimaryColor     string   `json:"primary_color" validate:"omitempty,hexcolor"`
	BonusMultiplier  float64  `json:"bonus_multiplier" validate:"omitempty,gte=1,lte=10"`
	ExclusiveJobs    bool     `json:"exclusive_jobs"`
	PriorityMatching bool     `json:"priority_matching"`
	Tags             []string `json:"tags" validate:"max=10,dive,min=1,max=24"`
}

// SettingsPatch is a partial settings update; nil fields are left alone.
type SettingsPatch struct {
	Name             *string   `json:"name" validate:"omitempty,guildname"`
	Description      *string   `json:"description" validate:"omitempty,max=500"`
	IsOpen           *bool     `json:"is_open"`
	RequiresApproval *bool     `json:"requires_approval"`
	MaxMembers       *int      `json:"max_members" validate:"omitempty,min=1,max=1000"`
	MinRankRequired  *Rank     `json:"min_rank_required" validate:"omitempty,rank"`
	Logo             *string   `json:"logo" validate:"omitempty,max=512"`
	BannerImage      *string   `json:"banner_image" validate:"omitempty,max=512"`
	PrimaryColor     *string   `json:"primary_color" validate:"omitempty,hexcolor"`
	BonusMultiplier  *float64  `json:"bonus_multiplier" validate:"omitempty,gte=1,lte=10"`
	ExclusiveJobs    *bool     `json:"exclusive_jobs"`
	PriorityMatching *bool     `json:"priority_matching"`
	Tags             *[]string `json:"tags" validate:"omitempty,max=10,dive,min=1,max=24"`
}

func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errorf(ErrValidation, "%v", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		switch fe.Tag() {
		case "min", "gte":
			msgs = append(msgs, field+" must be at least "+fe.Param())
		case "max", "lte":
			msgs = append(msgs, field+" must be at most "+fe.Param())
		case "guildname":
			msgs = append(msgs, field+" must be 3-30 letters, numbers, spaces, hyphens or underscores")
		case "rank":
			msgs = append(msgs, field+" must be one of G,F,E,D,C,B,A,S,SS,SSS")
		case "hexcolor":
			msgs = append(msgs, field+" must be a hex color")
		default:
			msgs = append(msgs, field+" is invalid")
		}
	}
	return errorf(ErrValidation, "%s", strings.Join(msgs, ", "))
}
