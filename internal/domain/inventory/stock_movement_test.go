package inventory

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStockMovement(t *testing.T) {
	productID := uuid.New()

	t.Run("creates inbound movement", func(t *testing.T) {
		m, err := NewStockMovement(productID, MovementIn, 5, decimal.NewFromFloat(1079.55), ReasonPurchaseCompleted, "PC-2026-0001")
		require.NoError(t, err)

		assert.Equal(t, MovementIn, m.Direction)
		assert.Equal(t, int64(5), m.Quantity)
		assert.Equal(t, int64(5), m.SignedQuantity())
		assert.Equal(t, "PC-2026-0001", m.Reference)
	})

	t.Run("outbound movement has negative signed quantity", func(t *testing.T) {
		m, err := NewStockMovement(productID, MovementOut, 3, decimal.Zero, ReasonPurchaseReversal, "PC-2026-0001 (reversed)")
		require.NoError(t, err)

		assert.Equal(t, int64(-3), m.SignedQuantity())
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		_, err := NewStockMovement(uuid.Nil, MovementIn, 5, decimal.Zero, ReasonPurchaseCompleted, "")
		assert.Error(t, err)

		_, err = NewStockMovement(productID, MovementDirection("SIDEWAYS"), 5, decimal.Zero, ReasonPurchaseCompleted, "")
		assert.Error(t, err)

		_, err = NewStockMovement(productID, MovementIn, 0, decimal.Zero, ReasonPurchaseCompleted, "")
		assert.Error(t, err)

		_, err = NewStockMovement(productID, MovementIn, 5, decimal.Zero, "", "")
		assert.Error(t, err)
	})
}
