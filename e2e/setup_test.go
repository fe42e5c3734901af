//go:build e2e

package e2e

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaxUsersLimit(t *testing.T) {
	for _, n := range []int{-1, 0, 1} {
		_, err := maxUsersLimit(n)
		assert.Error(t, err, "max users %d", n)
	}

	limit, err := maxUsersLimit(2)
	require.NoError(t, err)
	assert.Equal(t, 1, limit)

	limit, err = maxUsersLimit(3)
	require.NoError(t, err)
	assert.Equal(t, 2, limit)
}
