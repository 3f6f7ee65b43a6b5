// Package wizard holds the server-side state of the estimation wizard and
// enforces its forward-only step order.
package wizard

import (
	"errors"
	"fmt"
)

// Step is a wizard screen.
type Step int

const (
	StepLogin Step = iota
	StepCampDetails
	StepServiceSelection
	StepTestCaseInput
	StepCostCalculation
	StepSimpleCostCalculation
	StepCostSummary
)

func (s Step) String() string {
	switch s {
	case StepLogin:
		return "login"
	case StepCampDetails:
		return "camp_details"
	case StepServiceSelection:
		return "service_selection"
	case StepTestCaseInput:
		return "test_case_input"
	case StepCostCalculation:
		return "cost_calculation"
	case StepSimpleCostCalculation:
		return "simple_cost_calculation"
	case StepCostSummary:
		return "cost_summary"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// Flow is the branch a session takes after test case input.
type Flow string

const (
	// FlowCoordinator goes through cost calculation and the cost summary.
	FlowCoordinator Flow = "coordinator"
	// FlowCustomer goes through the simple, volume-tiered calculation.
	FlowCustomer Flow = "customer"
)

var (
	ErrWrongStep       = errors.New("operation not allowed at this wizard step")
	ErrSessionNotFound = errors.New("wizard session not found")
)

// ValidationError is a user-correctable input problem on the current step.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func wrongStep(op string, want, got Step) error {
	return fmt.Errorf("%w: %s requires %s, session is at %s", ErrWrongStep, op, want, got)
}
