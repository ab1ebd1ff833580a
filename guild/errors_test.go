package guild_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/kasuganosora/guildhall/server/guild"
	"github.com/stretchr/testify/assert"
)

func TestStorage_WrapsForeignErrors(t *testing.T) {
	cause := errors.New("connection reset")
	err := guild.Storage("get guild", cause)

	assert.ErrorIs(t, err, guild.ErrStorage)
	assert.ErrorIs(t, err, cause)
	var se *guild.StorageError
	if assert.ErrorAs(t, err, &se) {
		assert.Equal(t, "get guild", se.Op)
	}
	assert.Equal(t, "storage: get guild: connection reset", err.Error())
}

func TestStorage_KeepsDomainKinds(t *testing.T) {
	nf := fmt.Errorf("%w: guild g1", guild.ErrNotFound)
	err := guild.Storage("get guild", nf)
	assert.Same(t, nf, err)
	assert.NotErrorIs(t, err, guild.ErrStorage)

	assert.NoError(t, guild.Storage("noop", nil))
}
