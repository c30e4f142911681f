package types_test

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convenios/internal/common/types"
)

func TestCorrelationIDFromHeader(t *testing.T) {
	assert.Equal(t, types.CorrelationID("req-42"), types.CorrelationIDFromHeader("  req-42 "))

	for _, raw := range []string{"", "con espacio", strings.Repeat("a", 129), "ñandú"} {
		id := types.CorrelationIDFromHeader(raw)
		_, err := uuid.Parse(id.String())
		assert.NoError(t, err, "header %q should be replaced by a generated id", raw)
	}
}

func TestParseIdempotencyKey(t *testing.T) {
	key, err := types.ParseIdempotencyKey("")
	require.NoError(t, err)
	assert.Empty(t, key)

	key, err = types.ParseIdempotencyKey(" compra-001\t")
	require.NoError(t, err)
	assert.Equal(t, "compra-001", key.String())

	_, err = types.ParseIdempotencyKey(strings.Repeat("k", 129))
	assert.ErrorIs(t, err, types.ErrInvalidIdempotencyKey)

	_, err = types.ParseIdempotencyKey("dos palabras")
	assert.ErrorIs(t, err, types.ErrInvalidIdempotencyKey)
}
