package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/vetclinic/backend/internal/domain/billing"
	"github.com/vetclinic/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// maxNameMatches caps how many ids a name search feeds into an IN clause
const maxNameMatches = 500

// GormDirectoryLookup reads the client and pet tables. It implements both
// billing.ClientLookup and billing.PetLookup.
type GormDirectoryLookup struct {
	db *gorm.DB
}

// NewGormDirectoryLookup creates a new GormDirectoryLookup
func NewGormDirectoryLookup(db *gorm.DB) *GormDirectoryLookup {
	return &GormDirectoryLookup{db: db}
}

// GetClient returns the client's display data, or nil if it does not exist
func (l *GormDirectoryLookup) GetClient(ctx context.Context, id uuid.UUID) (*billing.ClientSummary, error) {
	var model models.ClientModel
	if err := l.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup client %s: %w", id, err)
	}
	return model.ToSummary(), nil
}

// FindClientIDsByName returns ids of clients whose name contains fragment
func (l *GormDirectoryLookup) FindClientIDsByName(ctx context.Context, fragment string) ([]uuid.UUID, error) {
	return l.findIDsByName(ctx, &models.ClientModel{}, fragment)
}

// GetPet returns the pet's display data, or nil if it does not exist
func (l *GormDirectoryLookup) GetPet(ctx context.Context, id uuid.UUID) (*billing.PetSummary, error) {
	var model models.PetModel
	if err := l.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup pet %s: %w", id, err)
	}
	return model.ToSummary(), nil
}

// FindPetIDsByName returns ids of pets whose name contains fragment
func (l *GormDirectoryLookup) FindPetIDsByName(ctx context.Context, fragment string) ([]uuid.UUID, error) {
	return l.findIDsByName(ctx, &models.PetModel{}, fragment)
}

func (l *GormDirectoryLookup) findIDsByName(ctx context.Context, model interface{}, fragment string) ([]uuid.UUID, error) {
	pattern := likePattern(fragment)
	if pattern == "" {
		return nil, nil
	}
	var ids []uuid.UUID
	if err := l.db.WithContext(ctx).
		Model(model).
		Where(`LOWER(name) LIKE ? ESCAPE '\'`, pattern).
		Limit(maxNameMatches).
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("search by name: %w", err)
	}
	return ids, nil
}
