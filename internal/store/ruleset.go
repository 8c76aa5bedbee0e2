package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	api "github.com/tabval/validation-service/api/v1alpha1"
	"github.com/tabval/validation-service/internal/store/model"
)

type RuleSet interface {
	InitialMigration() error
	Create(ctx context.Context, ruleSet api.RuleSet) (*api.RuleSet, error)
	Get(ctx context.Context, id uuid.UUID) (*api.RuleSet, error)
	GetByName(ctx context.Context, name string) (*api.RuleSet, error)
	List(ctx context.Context) ([]api.RuleSet, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type RuleSetStore struct {
	db *gorm.DB
}

// Make sure we conform to RuleSet interface
var _ RuleSet = (*RuleSetStore)(nil)

func NewRuleSetStore(db *gorm.DB) RuleSet {
	return &RuleSetStore{db: db}
}

func (s *RuleSetStore) InitialMigration() error {
	return s.db.AutoMigrate(&model.RuleSet{})
}

// Create stores a new version of the named rule set. An existing name is
// not overwritten; the new row gets the previous version plus one so old
// jobs keep pointing at the rules they ran with.
func (s *RuleSetStore) Create(ctx context.Context, ruleSet api.RuleSet) (*api.RuleSet, error) {
	record, err := model.NewRuleSetFromApiResource(&ruleSet)
	if err != nil {
		return nil, err
	}

	var latest model.RuleSet
	err = s.getDB(ctx).
		Where("name = ?", ruleSet.Name).
		Order("version DESC").
		First(&latest).Error
	switch {
	case err == nil:
		record.Version = latest.Version + 1
	case errors.Is(err, gorm.ErrRecordNotFound):
		record.Version = 1
	default:
		return nil, err
	}

	if err := s.getDB(ctx).Create(record).Error; err != nil {
		return nil, err
	}
	created, err := record.ToApiResource()
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *RuleSetStore) Get(ctx context.Context, id uuid.UUID) (*api.RuleSet, error) {
	ruleSet := model.RuleSet{ID: id}
	if err := s.getDB(ctx).First(&ruleSet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	resource, err := ruleSet.ToApiResource()
	if err != nil {
		return nil, err
	}
	return &resource, nil
}

// GetByName returns the latest version of the named rule set.
func (s *RuleSetStore) GetByName(ctx context.Context, name string) (*api.RuleSet, error) {
	var ruleSet model.RuleSet
	err := s.getDB(ctx).
		Where("name = ?", name).
		Order("version DESC").
		First(&ruleSet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	resource, err := ruleSet.ToApiResource()
	if err != nil {
		return nil, err
	}
	return &resource, nil
}

func (s *RuleSetStore) List(ctx context.Context) ([]api.RuleSet, error) {
	var ruleSets model.RuleSetList
	if err := s.getDB(ctx).Order("name, version DESC").Find(&ruleSets).Error; err != nil {
		return nil, err
	}
	resources := make([]api.RuleSet, 0, len(ruleSets))
	for i := range ruleSets {
		resource, err := ruleSets[i].ToApiResource()
		if err != nil {
			return nil, err
		}
		resources = append(resources, resource)
	}
	return resources, nil
}

func (s *RuleSetStore) Delete(ctx context.Context, id uuid.UUID) error {
	result := s.getDB(ctx).Unscoped().Delete(&model.RuleSet{ID: id})
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return result.Error
	}
	return nil
}

func (s *RuleSetStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db
}
