// Package testutil provides fixtures and helpers shared by the billing
// integration tests.
package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/vetclinic/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// NewTestUUID generates a deterministic UUID from seed
func NewTestUUID(seed string) uuid.UUID {
	namespace := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	return uuid.NewSHA1(namespace, []byte(seed))
}

// Clock is a settable time source for services under test
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock stopped at t
func NewClock(t time.Time) *Clock {
	return &Clock{now: t.UTC()}
}

// Now returns the current clock time
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}

// Seeder inserts catalog and directory rows billing reads from
type Seeder struct {
	t  *testing.T
	db *gorm.DB
}

// NewSeeder creates a Seeder over db
func NewSeeder(t *testing.T, db *gorm.DB) *Seeder {
	return &Seeder{t: t, db: db}
}

func (s *Seeder) base() models.BaseModel {
	now := time.Now().UTC()
	return models.BaseModel{ID: uuid.New(), CreatedAt: now, UpdatedAt: now}
}

// Client inserts an active client and returns its id
func (s *Seeder) Client(name string) uuid.UUID {
	s.t.Helper()
	row := models.ClientModel{
		BaseModel:   s.base(),
		Name:        name,
		Gender:      "F",
		PhoneNumber: uuid.NewString()[:12],
		Status:      true,
	}
	require.NoError(s.t, s.db.Create(&row).Error)
	return row.ID
}

// Pet inserts an active pet owned by clientID and returns its id
func (s *Seeder) Pet(clientID uuid.UUID, name string) uuid.UUID {
	s.t.Helper()
	row := models.PetModel{
		BaseModel: s.base(),
		Name:      name,
		ClientID:  clientID,
		Status:    true,
	}
	require.NoError(s.t, s.db.Create(&row).Error)
	return row.ID
}

// Service inserts an active catalog service and returns its id
func (s *Seeder) Service(name, price string) uuid.UUID {
	s.t.Helper()
	row := models.ServiceModel{
		BaseModel:   s.base(),
		Name:        name,
		Price:       decimal.RequireFromString(price),
		Duration:    30,
		ServiceType: "clinical",
		Status:      true,
	}
	require.NoError(s.t, s.db.Create(&row).Error)
	return row.ID
}

// Product inserts an active catalog product and returns its id
func (s *Seeder) Product(name, price string, stock int) uuid.UUID {
	s.t.Helper()
	row := models.ProductModel{
		BaseModel:     s.base(),
		Name:          name,
		Price:         decimal.RequireFromString(price),
		StockQuantity: stock,
		SKU:           "SKU-" + uuid.NewString()[:8],
		Status:        true,
	}
	require.NoError(s.t, s.db.Create(&row).Error)
	return row.ID
}

// RequireEventually retries condition until it holds or timeout passes
func RequireEventually(t *testing.T, condition func() bool, timeout, interval time.Duration, msgAndArgs ...interface{}) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(interval)
	}

	require.Fail(t, "Condition not met within timeout", msgAndArgs...)
}
