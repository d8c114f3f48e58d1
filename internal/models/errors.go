package models

import (
	"errors"
	"strings"
)

// Error taxonomy shared by the scheduler, stores and backends.
var (
	ErrTransientInspection = errors.New("transient inspection error")
	ErrAuthRequired        = errors.New("session requires authentication")
	ErrRemediationFailed   = errors.New("remediation failed")
	ErrCorruptState        = errors.New("corrupt entity state")
)

// ConfigurationError is fatal at startup. It collects every problem found so
// an operator can fix them in one pass.
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// Add records one problem.
func (e *ConfigurationError) Add(problem string) {
	e.Problems = append(e.Problems, problem)
}

// OrNil returns e when it holds problems, nil otherwise.
func (e *ConfigurationError) OrNil() error {
	if e == nil || len(e.Problems) == 0 {
		return nil
	}
	return e
}
