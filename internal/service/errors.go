package service

import (
	"fmt"

	"github.com/google/uuid"
)

type ErrResourceNotFound struct {
	error
}

func NewErrResourceNotFound(id uuid.UUID, resourceType string) *ErrResourceNotFound {
	return &ErrResourceNotFound{fmt.Errorf("%s %s not found", resourceType, id)}
}

func NewErrJobNotFound(id uuid.UUID) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "job")
}

func NewErrRuleSetNotFound(id uuid.UUID) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "rule set")
}

type ErrJobAlreadyCompleted struct {
	error
}

func NewErrJobAlreadyCompleted(id uuid.UUID) *ErrJobAlreadyCompleted {
	return &ErrJobAlreadyCompleted{fmt.Errorf("job %s already reached a terminal status", id)}
}

type ErrJobNotCompleted struct {
	error
}

func NewErrJobNotCompleted(id uuid.UUID) *ErrJobNotCompleted {
	return &ErrJobNotCompleted{fmt.Errorf("job %s has not finished yet", id)}
}

type ErrFileCorrupted struct {
	error
}

func NewErrFileCorrupted(message string) *ErrFileCorrupted {
	return &ErrFileCorrupted{fmt.Errorf("bad request: %s", message)}
}

type ErrInvalidRuleSet struct {
	error
}

func NewErrInvalidRuleSet(message string) *ErrInvalidRuleSet {
	return &ErrInvalidRuleSet{fmt.Errorf("invalid rule set: %s", message)}
}
