package engine

import (
	"errors"
	"slices"
)

// Policy decides whether execution proceeds after a step fails.
type Policy interface {
	Continue(step Step, err error) bool
}

// PolicyFunc adapts a function into a Policy.
type PolicyFunc func(step Step, err error) bool

func (f PolicyFunc) Continue(step Step, err error) bool {
	return f(step, err)
}

// ContinueAlways runs every remaining step regardless of failures.
// It is the engine default.
var ContinueAlways Policy = PolicyFunc(func(Step, error) bool { return true })

// HaltAlways stops at the first failure.
var HaltAlways Policy = PolicyFunc(func(Step, error) bool { return false })

// HaltOn stops when the step error matches any target via errors.Is.
func HaltOn(targets ...error) Policy {
	return PolicyFunc(func(_ Step, err error) bool {
		for _, t := range targets {
			if errors.Is(err, t) {
				return false
			}
		}
		return true
	})
}

// HaltSteps stops when any of the named steps fails.
func HaltSteps(names ...string) Policy {
	return PolicyFunc(func(step Step, _ error) bool {
		return !slices.Contains(names, step.Name())
	})
}
