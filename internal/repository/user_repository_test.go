package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/facility-desk/internal/domain"
)

func TestStoredRoleRejectsLabels(t *testing.T) {
	role, err := storedRole("aho")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAHO, role)

	for _, raw := range []string{"АХО", "Сотрудник АХО", "Руководитель", " aho", ""} {
		_, err := storedRole(raw)
		assert.Error(t, err, raw)
	}
}
