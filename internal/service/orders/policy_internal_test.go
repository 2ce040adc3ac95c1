package orders

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

func TestValidationPolicy_Resolve(t *testing.T) {
	require.NoError(t, PolicyHide.resolve("o1", nil))
	require.NoError(t, PolicySurface.resolve("o1", nil))

	hidden := PolicyHide.resolve("o1", domain.ErrAccountNotOwned)
	require.ErrorIs(t, hidden, domain.ErrOrderNotFound)
	assert.False(t, errors.Is(hidden, domain.ErrAccountNotOwned))

	surfaced := PolicySurface.resolve("o1", domain.ErrDirectoryUnavailable)
	require.ErrorIs(t, surfaced, domain.ErrDirectoryUnavailable)
}

func TestValidationPolicy_String(t *testing.T) {
	assert.Equal(t, "hide", PolicyHide.String())
	assert.Equal(t, "surface", PolicySurface.String())
	assert.Equal(t, "policy(7)", ValidationPolicy(7).String())
}

func TestNewQueryService_Defaults(t *testing.T) {
	s := NewQueryService(nil, nil, nil, nil, nil, WithListConcurrency(0))
	assert.Equal(t, defaultListConcurrency, s.listConcurrency)
	assert.Equal(t, PolicyHide, s.readPolicy)
	assert.Equal(t, PolicySurface, s.writePolicy)
	assert.NotNil(t, s.aggregator)
}
