package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "scholarship/pkg/domain-errors"
)

func TestParseRole(t *testing.T) {
	for _, in := range []string{"student", " Verifier ", "ADMIN"} {
		_, err := ParseRole(in)
		require.NoError(t, err, in)
	}

	_, err := ParseRole("system")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestActorAuthenticated(t *testing.T) {
	assert.False(t, Actor{}.Authenticated())
	assert.False(t, Actor{Role: RoleStudent}.Authenticated())
	assert.True(t, Actor{ID: UserID(uuid.New()), Role: RoleStudent}.Authenticated())
	assert.True(t, SystemActor().Authenticated())
}
