package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vetclinic/backend/internal/domain/billing"
	"github.com/vetclinic/backend/internal/domain/shared"
)

type maintenanceFixture struct {
	invoices *MockInvoiceRepository
	items    *MockInvoiceItemRepository
	catalog  *MockCatalogLookup
	sequence *MockInvoiceSequence
}

func newMaintenanceFixture() *maintenanceFixture {
	return &maintenanceFixture{
		invoices: new(MockInvoiceRepository),
		items:    new(MockInvoiceItemRepository),
		catalog:  new(MockCatalogLookup),
		sequence: new(MockInvoiceSequence),
	}
}

func (f *maintenanceFixture) service(withSequence bool) *MaintenanceService {
	var sequence billing.InvoiceSequence
	if withSequence {
		sequence = f.sequence
	}
	s := NewMaintenanceService(f.invoices, f.items, f.catalog, sequence, DefaultSettings())
	s.SetClock(fixedClock)
	return s
}

func TestMaintenanceService_Diagnose(t *testing.T) {
	f := newMaintenanceFixture()
	inv := newTestInvoice("INV-002503001")
	inv.Subtotal, inv.Total = dec("90"), dec("90")
	good := newTestItem(inv.ID, "50", 1, "0")
	stale := newTestItem(inv.ID, "25", 2, "0")
	stale.NetPrice = dec("40")
	stale.LegacyReference = true
	f.invoices.On("FindByID", mock.Anything, inv.ID, true).Return(inv, nil)
	f.items.On("FindByInvoice", mock.Anything, inv.ID).Return([]billing.InvoiceItem{good, stale}, nil)

	diag, err := f.service(false).Diagnose(context.Background(), inv.ID)

	require.NoError(t, err)
	assert.True(t, diag.Diverges)
	assert.True(t, dec("100").Equal(diag.Computed.Total))
	assert.True(t, dec("90").Equal(diag.Stored.Total))
	assert.Equal(t, int64(1), diag.LegacyReferences)
	assert.False(t, diag.Items[0].StaleNetPrice)
	assert.True(t, diag.Items[1].StaleNetPrice)
	f.invoices.AssertNotCalled(t, "Recalculate", mock.Anything, mock.Anything)
}

func TestMaintenanceService_NormalizeInvoiceReferences(t *testing.T) {
	f := newMaintenanceFixture()
	inv := newTestInvoice("INV-002503001")
	f.invoices.On("FindByID", mock.Anything, inv.ID, true).Return(inv, nil)
	f.items.On("NormalizeReferences", mock.Anything, inv.ID).Return(int64(3), nil)
	f.items.On("CountLegacyReferences", mock.Anything, &inv.ID).Return(int64(0), nil)

	resp, err := f.service(false).NormalizeInvoiceReferences(context.Background(), inv.ID)

	require.NoError(t, err)
	assert.Equal(t, int64(3), resp.Normalized)
	assert.Equal(t, int64(0), resp.Remaining)
}

func TestMaintenanceService_NormalizeAllReferences(t *testing.T) {
	f := newMaintenanceFixture()
	f.items.On("NormalizeAllReferences", mock.Anything).Return(int64(5), nil)
	f.items.On("CountLegacyReferences", mock.Anything, (*uuid.UUID)(nil)).Return(int64(1), nil)

	resp, err := f.service(false).NormalizeAllReferences(context.Background())

	require.NoError(t, err)
	assert.Nil(t, resp.InvoiceID)
	assert.Equal(t, int64(5), resp.Normalized)
	assert.Equal(t, int64(1), resp.Remaining)
}

func TestMaintenanceService_FixItemPrices(t *testing.T) {
	f := newMaintenanceFixture()
	inv := newTestInvoice("INV-002503001")
	serviceID, productID := uuid.New(), uuid.New()

	priced := newTestItem(inv.ID, "10", 1, "0")
	fromCatalog := newTestItem(inv.ID, "1", 2, "0")
	fromCatalog.UnitPrice, fromCatalog.NetPrice = dec("0"), dec("0")
	fromCatalog.ServiceID = &serviceID
	fromSnapshot := newTestItem(inv.ID, "1", 1, "0")
	fromSnapshot.UnitPrice, fromSnapshot.NetPrice = dec("0"), dec("0")
	fromSnapshot.ProductID = &productID
	fromSnapshot.OriginalProductData = &billing.CatalogSnapshot{ID: productID, Price: dec("7.25")}
	unreferenced := newTestItem(inv.ID, "1", 1, "0")
	unreferenced.UnitPrice, unreferenced.NetPrice = dec("0"), dec("0")

	f.invoices.On("FindByID", mock.Anything, inv.ID, true).Return(inv, nil)
	f.items.On("FindByInvoice", mock.Anything, inv.ID).
		Return([]billing.InvoiceItem{priced, fromCatalog, fromSnapshot, unreferenced}, nil)
	f.catalog.On("GetService", mock.Anything, serviceID).Return(&billing.CatalogRecord{ID: serviceID, Price: dec("30")}, nil)
	f.catalog.On("GetProduct", mock.Anything, productID).Return(nil, errors.New("catalog down"))
	f.items.On("Update", mock.Anything, mock.AnythingOfType("*billing.InvoiceItem")).Return(nil)
	f.invoices.On("Recalculate", mock.Anything, inv.ID).Return(recalcResult(inv, []billing.InvoiceItem{
		priced, newTestItem(inv.ID, "30", 2, "0"), newTestItem(inv.ID, "7.25", 1, "0"),
	}), nil)

	resp, err := f.service(false).FixItemPrices(context.Background(), inv.ID)

	require.NoError(t, err)
	require.Len(t, resp.Items, 4)
	assert.Equal(t, skipAlreadyPriced, resp.Items[0].SkipCause)
	assert.True(t, resp.Items[1].Repriced)
	assert.True(t, dec("30").Equal(resp.Items[1].NewPrice))
	assert.True(t, resp.Items[2].Repriced)
	assert.True(t, dec("7.25").Equal(resp.Items[2].NewPrice))
	assert.Equal(t, skipNoReference, resp.Items[3].SkipCause)
	f.items.AssertNumberOfCalls(t, "Update", 2)
	assert.True(t, dec("77.25").Equal(resp.Recalculation.After.Total))
}

func TestMaintenanceService_BackfillNumbers(t *testing.T) {
	t.Run("sequence per creation month", func(t *testing.T) {
		f := newMaintenanceFixture()
		jan := newTestInvoice("pending")
		jan.InvoiceNumber = ""
		jan.CreatedAt = time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC)
		broken := newTestInvoice("pending")
		broken.InvoiceNumber = ""
		broken.CreatedAt = time.Date(2025, 2, 2, 0, 0, 0, 0, time.UTC)

		f.invoices.On("FindWithoutNumber", mock.Anything).Return([]billing.Invoice{*jan, *broken}, nil)
		f.sequence.On("Next", mock.Anything, "2501").Return(int64(4), nil)
		f.sequence.On("Next", mock.Anything, "2502").Return(int64(0), errors.New("redis down"))
		f.invoices.On("Save", mock.Anything, mock.AnythingOfType("*billing.Invoice")).Return(nil)

		resp, err := f.service(true).BackfillNumbers(context.Background())

		require.NoError(t, err)
		require.Len(t, resp.Assigned, 1)
		assert.Equal(t, "INV-002501004", resp.Assigned[0].InvoiceNumber)
		assert.Equal(t, 1, resp.Failed)
		f.invoices.AssertNumberOfCalls(t, "Save", 1)
	})

	t.Run("stored numbers without sequence", func(t *testing.T) {
		f := newMaintenanceFixture()
		inv := newTestInvoice("pending")
		inv.InvoiceNumber = ""
		inv.CreatedAt = testNow
		f.invoices.On("FindWithoutNumber", mock.Anything).Return([]billing.Invoice{*inv}, nil)
		f.invoices.On("ListNumbersWithPrefix", mock.Anything, "INV-002503").
			Return([]string{"INV-002503009", "INV-002503garbage"}, nil)
		f.invoices.On("Save", mock.Anything, mock.Anything).Return(nil)

		resp, err := f.service(false).BackfillNumbers(context.Background())

		require.NoError(t, err)
		require.Len(t, resp.Assigned, 1)
		assert.Equal(t, "INV-002503010", resp.Assigned[0].InvoiceNumber)
	})
}

func TestMaintenanceService_Overview(t *testing.T) {
	f := newMaintenanceFixture()
	f.invoices.On("CountByState", mock.Anything).Return(billing.InvoiceStateCounts{Active: 3, Deleted: 1}, nil)

	counts, err := f.service(false).Overview(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(3), counts.Active)

	f2 := newMaintenanceFixture()
	f2.invoices.On("CountByState", mock.Anything).Return(billing.InvoiceStateCounts{}, shared.ErrDependencyUnavailable)
	_, err = f2.service(false).Overview(context.Background())
	assert.ErrorIs(t, err, shared.ErrDependencyUnavailable)
}
