package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	api "github.com/tabval/validation-service/api/v1alpha1"
	"github.com/tabval/validation-service/internal/pipeline/engine"
	"github.com/tabval/validation-service/internal/store"
)

type RuleSetService struct {
	store store.Store
}

func NewRuleSetService(store store.Store) *RuleSetService {
	return &RuleSetService{store: store}
}

// Create compiles the rule set before storing it so a broken definition is
// rejected at submission time, not when the first job runs.
func (s *RuleSetService) Create(ctx context.Context, ruleSet api.RuleSet) (*api.RuleSet, error) {
	if len(ruleSet.Rules) == 0 {
		return nil, NewErrInvalidRuleSet("at least one rule is required")
	}
	if _, err := engine.Compile(ruleSet.Rules, ruleSet.Unique, ruleSet.UniqueMode, nil); err != nil {
		return nil, NewErrInvalidRuleSet(err.Error())
	}

	return s.store.RuleSet().Create(ctx, ruleSet)
}

func (s *RuleSetService) Get(ctx context.Context, id uuid.UUID) (*api.RuleSet, error) {
	ruleSet, err := s.store.RuleSet().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrRuleSetNotFound(id)
		}
		return nil, err
	}
	return ruleSet, nil
}

func (s *RuleSetService) List(ctx context.Context) ([]api.RuleSet, error) {
	return s.store.RuleSet().List(ctx)
}

func (s *RuleSetService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.store.RuleSet().Delete(ctx, id)
}
