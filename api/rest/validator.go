package rest

import (
	"reflect"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/kasuganosora/guildhall/server/guild"
)

// structValidator lets gin binding use the guild validator, so request
// structs can use the guild-specific tags (rank, guildname).
type structValidator struct{}

func (structValidator) ValidateStruct(obj any) error {
	if obj == nil {
		return nil
	}
	v := reflect.ValueOf(obj)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}
	return guild.Validator().Struct(obj)
}

func (structValidator) Engine() any { return guild.Validator() }

var installOnce sync.Once

// InstallValidator swaps gin's default binding validator for the guild one.
// Request structs then declare rules with `validate` tags.
func InstallValidator() {
	installOnce.Do(func() { binding.Validator = structValidator{} })
}
