package billing

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vetclinic/backend/internal/domain/shared"
)

func newTestInvoice(t *testing.T) *Invoice {
	t.Helper()
	inv, err := NewInvoice("INV-002501001", NewInvoiceParams{
		ClientID:        uuid.New(),
		InvoiceDate:     time.Date(2025, time.January, 10, 0, 0, 0, 0, time.UTC),
		DiscountPercent: dec("5"),
	})
	require.NoError(t, err)
	inv.ClearDomainEvents()
	return inv
}

func TestNewInvoice(t *testing.T) {
	t.Run("starts active unpaid with zero totals", func(t *testing.T) {
		inv, err := NewInvoice("INV-002501001", NewInvoiceParams{
			ClientID:    uuid.New(),
			InvoiceDate: time.Now(),
			Deposit:     dec("20.005"),
		})

		require.NoError(t, err)
		assert.True(t, inv.IsActive())
		assert.Equal(t, PaymentStatusUnpaid, inv.PaymentStatus)
		assert.True(t, inv.Totals().Equal(ZeroTotals()))
		assert.Equal(t, "20.01", inv.Deposit.StringFixed(2))
		assert.Equal(t, 1, inv.GetVersion())

		events := inv.GetDomainEvents()
		require.Len(t, events, 1)
		assert.Equal(t, EventTypeInvoiceCreated, events[0].EventType())
	})

	invalid := []struct {
		name   string
		number string
		params NewInvoiceParams
	}{
		{"empty number", "", NewInvoiceParams{ClientID: uuid.New(), InvoiceDate: time.Now()}},
		{"missing client", "INV-1", NewInvoiceParams{InvoiceDate: time.Now()}},
		{"missing date", "INV-1", NewInvoiceParams{ClientID: uuid.New()}},
		{"discount out of range", "INV-1", NewInvoiceParams{ClientID: uuid.New(), InvoiceDate: time.Now(), DiscountPercent: dec("150")}},
		{"discount below a hundredth", "INV-1", NewInvoiceParams{ClientID: uuid.New(), InvoiceDate: time.Now(), DiscountPercent: dec("7.125")}},
		{"negative deposit", "INV-1", NewInvoiceParams{ClientID: uuid.New(), InvoiceDate: time.Now(), Deposit: dec("-1")}},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewInvoice(tt.number, tt.params)
			assert.ErrorIs(t, err, shared.NewDomainError(shared.CodeValidation, ""))
		})
	}
}

func TestInvoice_Recalculate(t *testing.T) {
	t.Run("stores derived totals and emits event", func(t *testing.T) {
		inv := newTestInvoice(t)

		before := inv.Recalculate([]InvoiceItem{itemWith("100.00", 2, "10")})

		assert.True(t, before.Equal(ZeroTotals()))
		assert.Equal(t, "180.00", inv.Subtotal.StringFixed(2))
		assert.Equal(t, "9.00", inv.DiscountAmount.StringFixed(2))
		assert.Equal(t, "171.00", inv.Total.StringFixed(2))
		require.Len(t, inv.GetDomainEvents(), 1)
		assert.Equal(t, EventTypeInvoiceTotalsRecalculated, inv.GetDomainEvents()[0].EventType())
	})

	t.Run("unchanged totals emit nothing", func(t *testing.T) {
		inv := newTestInvoice(t)
		items := []InvoiceItem{itemWith("30.00", 1, "0")}
		inv.Recalculate(items)
		inv.ClearDomainEvents()

		inv.Recalculate(items)

		assert.Empty(t, inv.GetDomainEvents())
	})

	t.Run("removing all items zeroes totals", func(t *testing.T) {
		inv := newTestInvoice(t)
		inv.Recalculate([]InvoiceItem{itemWith("30.00", 1, "0")})

		inv.Recalculate(nil)

		assert.True(t, inv.Totals().Equal(ZeroTotals()))
	})
}

func TestInvoice_ApplyChanges(t *testing.T) {
	t.Run("discount change requests recalculation", func(t *testing.T) {
		inv := newTestInvoice(t)
		d := dec("20")

		recalc, err := inv.ApplyChanges(InvoiceChanges{DiscountPercent: &d})

		require.NoError(t, err)
		assert.True(t, recalc)
		assert.True(t, inv.DiscountPercent.Equal(d))
	})

	t.Run("notes change does not", func(t *testing.T) {
		inv := newTestInvoice(t)
		notes := "Paid in cash"

		recalc, err := inv.ApplyChanges(InvoiceChanges{Notes: &notes})

		require.NoError(t, err)
		assert.False(t, recalc)
		assert.Equal(t, notes, inv.Notes)
	})

	t.Run("clear pet and due date", func(t *testing.T) {
		inv := newTestInvoice(t)
		pet := uuid.New()
		due := time.Now()
		inv.PetID, inv.DueDate = &pet, &due

		_, err := inv.ApplyChanges(InvoiceChanges{ClearPet: true, ClearDueDate: true})

		require.NoError(t, err)
		assert.Nil(t, inv.PetID)
		assert.Nil(t, inv.DueDate)
	})

	t.Run("rejects invalid discount without mutating", func(t *testing.T) {
		inv := newTestInvoice(t)
		d := dec("101")
		notes := "changed"

		_, err := inv.ApplyChanges(InvoiceChanges{DiscountPercent: &d, Notes: &notes})

		require.Error(t, err)
		assert.Empty(t, inv.Notes)
		assert.True(t, inv.DiscountPercent.Equal(dec("5")))
	})
}

func TestInvoice_SoftDeleteRestore(t *testing.T) {
	inv := newTestInvoice(t)

	assert.True(t, inv.SoftDelete())
	assert.False(t, inv.IsActive())
	assert.False(t, inv.SoftDelete(), "second delete is a no-op")

	assert.True(t, inv.Restore())
	assert.True(t, inv.IsActive())
	assert.False(t, inv.Restore())

	events := inv.GetDomainEvents()
	require.Len(t, events, 2)
	assert.Equal(t, EventTypeInvoiceSoftDeleted, events[0].EventType())
	assert.Equal(t, EventTypeInvoiceRestored, events[1].EventType())
}

func TestInvoice_MarkPaid(t *testing.T) {
	t.Run("marks once and keeps the first timestamp", func(t *testing.T) {
		inv := newTestInvoice(t)
		first := time.Date(2025, time.February, 1, 12, 0, 0, 0, time.UTC)

		require.NoError(t, inv.MarkPaid(first))
		require.NoError(t, inv.MarkPaid(first.Add(time.Hour)))

		assert.True(t, inv.IsPaid())
		require.NotNil(t, inv.PaidAt)
		assert.Equal(t, first, *inv.PaidAt)
		assert.Len(t, inv.GetDomainEvents(), 1)
	})

	t.Run("deleted invoice cannot be paid", func(t *testing.T) {
		inv := newTestInvoice(t)
		inv.SoftDelete()

		err := inv.MarkPaid(time.Now())

		assert.ErrorIs(t, err, ErrInvoiceDeleted)
		assert.False(t, inv.IsPaid())
	})

	t.Run("deposit does not imply payment", func(t *testing.T) {
		inv := newTestInvoice(t)
		inv.Recalculate([]InvoiceItem{itemWith("50.00", 1, "0")})
		dep := decimal.NewFromInt(500)

		_, err := inv.ApplyChanges(InvoiceChanges{Deposit: &dep})

		require.NoError(t, err)
		assert.False(t, inv.IsPaid())
	})
}

func TestInvoice_AssignNumber(t *testing.T) {
	inv := &Invoice{}
	require.NoError(t, inv.AssignNumber("INV-002501004"))
	assert.Equal(t, "INV-002501004", inv.InvoiceNumber)

	err := inv.AssignNumber("INV-002501005")
	assert.ErrorIs(t, err, shared.ErrInvalidState)
}
