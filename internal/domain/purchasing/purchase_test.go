package purchasing

import (
	"testing"

	"github.com/google/uuid"
	"github.com/retail/backend/internal/domain/shared"
	"github.com/retail/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestPurchase(t *testing.T) *Purchase {
	supplierID := uuid.New()
	purchase, err := NewPurchase("PC-2026-0001", supplierID, "Test Supplier", PurchaseTypeLocal, valueobject.ARS, nil)
	require.NoError(t, err)
	return purchase
}

func createImportPurchase(t *testing.T, rate float64) *Purchase {
	supplierID := uuid.New()
	var ratePtr *decimal.Decimal
	if rate > 0 {
		r := decimal.NewFromFloat(rate)
		ratePtr = &r
	}
	purchase, err := NewPurchase("PC-2026-0002", supplierID, "Import Supplier", PurchaseTypeImport, valueobject.USD, ratePtr)
	require.NoError(t, err)
	return purchase
}

func addTestItem(t *testing.T, p *Purchase, quantity int64, unitPrice float64) *PurchaseItem {
	item, err := p.AddItem(uuid.New(), quantity, nil, decimal.NewFromFloat(unitPrice))
	require.NoError(t, err)
	return item
}

func pesos(amount float64) CostField {
	return NewCostField(decimal.NewFromFloat(amount), valueobject.ARS)
}

func TestPurchaseStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from     PurchaseStatus
		to       PurchaseStatus
		canTrans bool
	}{
		{PurchaseStatusPending, PurchaseStatusOrdered, true},
		{PurchaseStatusPending, PurchaseStatusCompleted, true},
		{PurchaseStatusOrdered, PurchaseStatusShipped, true},
		{PurchaseStatusShipped, PurchaseStatusInTransit, true},
		{PurchaseStatusInTransit, PurchaseStatusReceived, true},
		{PurchaseStatusReceived, PurchaseStatusCompleted, true},
		// No backward transitions
		{PurchaseStatusOrdered, PurchaseStatusPending, false},
		{PurchaseStatusReceived, PurchaseStatusShipped, false},
		// COMPLETED is terminal
		{PurchaseStatusCompleted, PurchaseStatusPending, false},
		{PurchaseStatusCompleted, PurchaseStatusReceived, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.canTrans, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestPurchaseStatus_Gates(t *testing.T) {
	assert.True(t, PurchaseStatusPending.CanEdit())
	assert.True(t, PurchaseStatusOrdered.CanEdit())
	assert.True(t, PurchaseStatusShipped.CanEdit())
	assert.False(t, PurchaseStatusInTransit.CanEdit())
	assert.False(t, PurchaseStatusReceived.CanEdit())
	assert.False(t, PurchaseStatusCompleted.CanEdit())

	assert.True(t, PurchaseStatusPending.CanDelete())
	assert.True(t, PurchaseStatusCompleted.CanDelete())
	assert.False(t, PurchaseStatusInTransit.CanDelete())
	assert.False(t, PurchaseStatusReceived.CanDelete())
}

func TestNewPurchase(t *testing.T) {
	t.Run("creates pending purchase", func(t *testing.T) {
		purchase := createTestPurchase(t)

		assert.Equal(t, PurchaseStatusPending, purchase.Status)
		assert.True(t, purchase.Total.IsZero())
		assert.Len(t, purchase.GetDomainEvents(), 1)
		assert.Equal(t, EventTypePurchaseCreated, purchase.GetDomainEvents()[0].EventType())
	})

	t.Run("rejects missing supplier", func(t *testing.T) {
		_, err := NewPurchase("PC-1", uuid.Nil, "", PurchaseTypeLocal, valueobject.ARS, nil)
		assert.Error(t, err)
	})

	t.Run("rejects non-positive exchange rate", func(t *testing.T) {
		zero := decimal.Zero
		_, err := NewPurchase("PC-1", uuid.New(), "S", PurchaseTypeImport, valueobject.USD, &zero)
		assert.Error(t, err)
	})
}

func TestPurchase_Recalculate(t *testing.T) {
	t.Run("distributes overhead across items", func(t *testing.T) {
		purchase := createTestPurchase(t)
		addTestItem(t, purchase, 5, 1000)
		addTestItem(t, purchase, 3, 2000)

		err := purchase.SetOverheadCosts(OverheadCosts{
			Freight:   pesos(500),
			Customs:   pesos(200),
			Tax:       pesos(100),
			Insurance: pesos(50),
			Other:     pesos(25),
		})
		require.NoError(t, err)

		assert.Equal(t, "11000.00", purchase.SubtotalPesos.StringFixed(2))
		assert.Equal(t, "875.00", purchase.TotalOverhead.StringFixed(2))
		assert.Equal(t, "11875.00", purchase.Total.StringFixed(2))

		assert.Equal(t, "397.73", purchase.Items[0].DistributedCost.StringFixed(2))
		assert.Equal(t, "1079.55", purchase.Items[0].FinalUnitCost.StringFixed(2))
		assert.Equal(t, "477.27", purchase.Items[1].DistributedCost.StringFixed(2))
		assert.Equal(t, "2159.09", purchase.Items[1].FinalUnitCost.StringFixed(2))
	})

	t.Run("maintains total invariant on item changes", func(t *testing.T) {
		purchase := createTestPurchase(t)
		item := addTestItem(t, purchase, 2, 100)
		addTestItem(t, purchase, 1, 300)
		require.NoError(t, purchase.SetOverheadCosts(OverheadCosts{Freight: pesos(50)}))

		require.NoError(t, purchase.UpdateItem(item.ID, 4, nil, decimal.NewFromInt(150)))

		assert.Equal(t, "900.00", purchase.SubtotalPesos.StringFixed(2))
		assert.True(t, purchase.Total.Equal(purchase.SubtotalPesos.Add(purchase.TotalOverhead)))
	})

	t.Run("converts foreign overhead at purchase rate", func(t *testing.T) {
		purchase := createImportPurchase(t, 950)
		addTestItem(t, purchase, 10, 1000)

		// Freight in dollars, tax already in pesos: mixed denomination.
		err := purchase.SetOverheadCosts(OverheadCosts{
			Freight: NewCostField(decimal.NewFromInt(10), valueobject.USD),
			Tax:     pesos(500),
		})
		require.NoError(t, err)

		assert.Equal(t, "10000.00", purchase.TotalOverhead.StringFixed(2)) // 10*950 + 500
	})
}

func TestPurchase_ValidateExchangeRate(t *testing.T) {
	t.Run("foreign cost without rate is rejected", func(t *testing.T) {
		purchase := createImportPurchase(t, 0)
		addTestItem(t, purchase, 1, 100)
		require.NoError(t, purchase.SetOverheadCosts(OverheadCosts{
			Freight: NewCostField(decimal.NewFromInt(10), valueobject.USD),
		}))

		err := purchase.ValidateExchangeRate()
		require.Error(t, err)
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "MISSING_EXCHANGE_RATE", domainErr.Code)

		// The unconverted cost contributed zero instead of blowing up.
		assert.Equal(t, "0.00", purchase.TotalOverhead.StringFixed(2))
	})

	t.Run("local purchase never needs a rate", func(t *testing.T) {
		purchase := createTestPurchase(t)
		addTestItem(t, purchase, 1, 100)
		require.NoError(t, purchase.SetOverheadCosts(OverheadCosts{Freight: pesos(10)}))

		assert.NoError(t, purchase.ValidateExchangeRate())
	})
}

func TestPurchase_ItemManagement(t *testing.T) {
	t.Run("rejects zero quantity", func(t *testing.T) {
		purchase := createTestPurchase(t)
		_, err := purchase.AddItem(uuid.New(), 0, nil, decimal.NewFromInt(100))
		assert.Error(t, err)
	})

	t.Run("cannot remove the last item", func(t *testing.T) {
		purchase := createTestPurchase(t)
		item := addTestItem(t, purchase, 1, 100)

		err := purchase.RemoveItem(item.ID)
		require.Error(t, err)
		assert.Equal(t, 1, purchase.ItemCount())
	})

	t.Run("rejects edits in transit", func(t *testing.T) {
		purchase := createTestPurchase(t)
		item := addTestItem(t, purchase, 1, 100)
		require.NoError(t, purchase.ChangeStatus(PurchaseStatusInTransit))

		_, err := purchase.AddItem(uuid.New(), 1, nil, decimal.NewFromInt(50))
		assert.Error(t, err)
		assert.Error(t, purchase.UpdateItem(item.ID, 2, nil, decimal.NewFromInt(100)))
		assert.Error(t, purchase.SetOverheadCosts(OverheadCosts{Freight: pesos(1)}))
		assert.Error(t, purchase.SetNotes("demorado en aduana"))
		assert.Error(t, purchase.SetExpectedDate(nil))
	})

	t.Run("allows figure corrections after completion", func(t *testing.T) {
		purchase := createTestPurchase(t)
		item := addTestItem(t, purchase, 2, 100)
		require.NoError(t, purchase.Complete())

		assert.NoError(t, purchase.UpdateItem(item.ID, 2, nil, decimal.NewFromInt(120)))
		assert.Equal(t, "240.00", purchase.SubtotalPesos.StringFixed(2))
	})
}

func TestPurchase_Complete(t *testing.T) {
	t.Run("completes from pending", func(t *testing.T) {
		purchase := createTestPurchase(t)
		addTestItem(t, purchase, 5, 1000)

		require.NoError(t, purchase.Complete())

		assert.Equal(t, PurchaseStatusCompleted, purchase.Status)
		require.NotNil(t, purchase.CompletedAt)

		events := purchase.GetDomainEvents()
		assert.Equal(t, EventTypePurchaseCompleted, events[len(events)-1].EventType())
	})

	t.Run("cannot complete twice", func(t *testing.T) {
		purchase := createTestPurchase(t)
		addTestItem(t, purchase, 5, 1000)
		require.NoError(t, purchase.Complete())

		err := purchase.Complete()
		require.Error(t, err)
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "ALREADY_COMPLETED", domainErr.Code)
	})

	t.Run("cannot complete without items", func(t *testing.T) {
		purchase := createTestPurchase(t)
		assert.Error(t, purchase.Complete())
	})

	t.Run("cannot complete import with missing rate", func(t *testing.T) {
		purchase := createImportPurchase(t, 0)
		addTestItem(t, purchase, 1, 100)
		require.NoError(t, purchase.SetOverheadCosts(OverheadCosts{
			Freight: NewCostField(decimal.NewFromInt(10), valueobject.USD),
		}))

		assert.Error(t, purchase.Complete())
	})
}

func TestPurchase_ValidateDeletable(t *testing.T) {
	purchase := createTestPurchase(t)
	addTestItem(t, purchase, 1, 100)

	assert.NoError(t, purchase.ValidateDeletable())

	require.NoError(t, purchase.ChangeStatus(PurchaseStatusInTransit))
	assert.Error(t, purchase.ValidateDeletable())

	require.NoError(t, purchase.ChangeStatus(PurchaseStatusReceived))
	assert.Error(t, purchase.ValidateDeletable())
}

func TestPurchase_ChangeStatus(t *testing.T) {
	purchase := createTestPurchase(t)
	addTestItem(t, purchase, 1, 100)

	require.NoError(t, purchase.ChangeStatus(PurchaseStatusOrdered))
	assert.Equal(t, PurchaseStatusOrdered, purchase.Status)

	// Completion is only reachable through Complete
	err := purchase.ChangeStatus(PurchaseStatusCompleted)
	assert.Error(t, err)

	// No going back
	assert.Error(t, purchase.ChangeStatus(PurchaseStatusPending))
}
