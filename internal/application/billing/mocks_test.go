package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/vetclinic/backend/internal/domain/billing"
	"github.com/vetclinic/backend/internal/domain/shared"
)

// MockInvoiceRepository is a mock implementation of InvoiceRepository
type MockInvoiceRepository struct {
	mock.Mock
}

func (m *MockInvoiceRepository) Create(ctx context.Context, inv *billing.Invoice, items ...*billing.InvoiceItem) error {
	args := m.Called(ctx, inv, items)
	return args.Error(0)
}

func (m *MockInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID, includeDeleted bool) (*billing.Invoice, error) {
	args := m.Called(ctx, id, includeDeleted)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindAll(ctx context.Context, filter billing.InvoiceFilter) ([]billing.Invoice, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) Count(ctx context.Context, filter billing.InvoiceFilter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockInvoiceRepository) Save(ctx context.Context, inv *billing.Invoice) error {
	args := m.Called(ctx, inv)
	return args.Error(0)
}

func (m *MockInvoiceRepository) Recalculate(ctx context.Context, id uuid.UUID) (*billing.RecalcResult, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.RecalcResult), args.Error(1)
}

func (m *MockInvoiceRepository) FindWithoutNumber(ctx context.Context) ([]billing.Invoice, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) ListNumbersWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	args := m.Called(ctx, prefix)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockInvoiceRepository) CountByState(ctx context.Context) (billing.InvoiceStateCounts, error) {
	args := m.Called(ctx)
	return args.Get(0).(billing.InvoiceStateCounts), args.Error(1)
}

// MockInvoiceItemRepository is a mock implementation of InvoiceItemRepository
type MockInvoiceItemRepository struct {
	mock.Mock
}

func (m *MockInvoiceItemRepository) Create(ctx context.Context, item *billing.InvoiceItem) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

func (m *MockInvoiceItemRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.InvoiceItem, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.InvoiceItem), args.Error(1)
}

func (m *MockInvoiceItemRepository) FindByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]billing.InvoiceItem, error) {
	args := m.Called(ctx, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.InvoiceItem), args.Error(1)
}

func (m *MockInvoiceItemRepository) Update(ctx context.Context, item *billing.InvoiceItem) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

func (m *MockInvoiceItemRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockInvoiceItemRepository) NormalizeReferences(ctx context.Context, invoiceID uuid.UUID) (int64, error) {
	args := m.Called(ctx, invoiceID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockInvoiceItemRepository) NormalizeAllReferences(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockInvoiceItemRepository) CountLegacyReferences(ctx context.Context, invoiceID *uuid.UUID) (int64, error) {
	args := m.Called(ctx, invoiceID)
	return args.Get(0).(int64), args.Error(1)
}

// MockInvoiceSequence is a mock implementation of InvoiceSequence
type MockInvoiceSequence struct {
	mock.Mock
}

func (m *MockInvoiceSequence) Next(ctx context.Context, yearMonth string) (int64, error) {
	args := m.Called(ctx, yearMonth)
	return args.Get(0).(int64), args.Error(1)
}

// MockCatalogLookup is a mock implementation of CatalogLookup
type MockCatalogLookup struct {
	mock.Mock
}

func (m *MockCatalogLookup) GetService(ctx context.Context, id uuid.UUID) (*billing.CatalogRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.CatalogRecord), args.Error(1)
}

func (m *MockCatalogLookup) GetProduct(ctx context.Context, id uuid.UUID) (*billing.CatalogRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.CatalogRecord), args.Error(1)
}

// MockDirectory is a mock implementation of ClientLookup and PetLookup
type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) GetClient(ctx context.Context, id uuid.UUID) (*billing.ClientSummary, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.ClientSummary), args.Error(1)
}

func (m *MockDirectory) FindClientIDsByName(ctx context.Context, fragment string) ([]uuid.UUID, error) {
	args := m.Called(ctx, fragment)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockDirectory) GetPet(ctx context.Context, id uuid.UUID) (*billing.PetSummary, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.PetSummary), args.Error(1)
}

func (m *MockDirectory) FindPetIDsByName(ctx context.Context, fragment string) ([]uuid.UUID, error) {
	args := m.Called(ctx, fragment)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

// MockEventPublisher records published events
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

// Test helpers
var (
	testClientID = uuid.New()
	testPetID    = uuid.New()
	testNow      = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func fixedClock() time.Time { return testNow }

func newTestInvoice(number string) *billing.Invoice {
	inv, err := billing.NewInvoice(number, billing.NewInvoiceParams{
		ClientID:    testClientID,
		InvoiceDate: testNow,
	})
	if err != nil {
		panic(err)
	}
	inv.ClearDomainEvents()
	return inv
}

func newTestItem(invoiceID uuid.UUID, unitPrice string, quantity int, discount string) billing.InvoiceItem {
	item, err := billing.NewInvoiceItem(billing.NewInvoiceItemParams{
		InvoiceID:       invoiceID,
		ItemType:        billing.ItemTypeService,
		ItemName:        "Consultation",
		UnitPrice:       dec(unitPrice),
		Quantity:        quantity,
		DiscountPercent: dec(discount),
	}, billing.SnapshotResult{Status: billing.SnapshotNotApplicable})
	if err != nil {
		panic(err)
	}
	return *item
}

// recalcResult builds the result Recalculate returns for inv over items
func recalcResult(inv *billing.Invoice, items []billing.InvoiceItem) *billing.RecalcResult {
	after := *inv
	after.ClearDomainEvents()
	before := after.Recalculate(items)
	return &billing.RecalcResult{
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		Before:        before,
		After:         after.Totals(),
		ItemCount:     len(items),
		Invoice:       &after,
	}
}
