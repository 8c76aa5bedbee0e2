package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	api "github.com/tabval/validation-service/api/v1alpha1"
)

// RuleSet persists a named rule configuration as JSON. Version increments
// on every overwrite of the same name; the annotated output contract is
// stable for a given version.
type RuleSet struct {
	ID         uuid.UUID `gorm:"primaryKey;"`
	Name       string    `gorm:"index;not null"`
	Version    int       `gorm:"not null;default:1"`
	Rules      []byte    `gorm:"type:jsonb;not null"`
	Unique     []byte    `gorm:"type:jsonb"`
	UniqueMode string
	CreatedAt  time.Time
}

type RuleSetList []RuleSet

func (r *RuleSet) ToApiResource() (api.RuleSet, error) {
	out := api.RuleSet{
		Id:         r.ID,
		Name:       r.Name,
		Version:    r.Version,
		UniqueMode: r.UniqueMode,
		CreatedAt:  r.CreatedAt,
	}
	if err := json.Unmarshal(r.Rules, &out.Rules); err != nil {
		return api.RuleSet{}, err
	}
	if len(r.Unique) > 0 {
		if err := json.Unmarshal(r.Unique, &out.Unique); err != nil {
			return api.RuleSet{}, err
		}
	}
	return out, nil
}

func NewRuleSetFromApiResource(resource *api.RuleSet) (*RuleSet, error) {
	rules, err := json.Marshal(resource.Rules)
	if err != nil {
		return nil, err
	}
	var unique []byte
	if len(resource.Unique) > 0 {
		if unique, err = json.Marshal(resource.Unique); err != nil {
			return nil, err
		}
	}
	id := resource.Id
	if id == (uuid.UUID{}) {
		id = uuid.New()
	}
	return &RuleSet{
		ID:         id,
		Name:       resource.Name,
		Version:    resource.Version,
		Rules:      rules,
		Unique:     unique,
		UniqueMode: resource.UniqueMode,
	}, nil
}
