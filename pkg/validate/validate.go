// Package validate checks install selections before any work is started.
package validate

import (
	"fmt"
	"strings"
)

// Kind identifies which precondition failed.
type Kind int

const (
	EmptyPath Kind = iota + 1
	CountNotChosen
	CountNotPositive
	CountExceedsAvailable
)

// ValidationError is returned when a selection is rejected. Its message is
// meant to be shown to the user as is.
// Immutable
type ValidationError struct {
	Kind      Kind
	Available int
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case EmptyPath:
		return "Select the path to save"
	case CountNotChosen:
		return "The number of images to save is not selected"
	case CountNotPositive:
		return "The number of images cannot be zero"
	case CountExceedsAvailable:
		return fmt.Sprintf("The number of images cannot exceed %d", e.Available)
	default:
		return "invalid selection"
	}
}

func PathIsNonEmpty(path string) bool {
	return strings.TrimSpace(path) != ""
}

// CountWasChosen reports whether the user picked a count at all. Unparsable
// input arrives here as zero.
func CountWasChosen(count int) bool {
	return count != 0
}

func CountIsPositive(count int) bool {
	return count > 0
}

func CountWithinAvailable(count, available int) bool {
	return count <= available
}

// Selection runs the checks in order and returns the first failure.
func Selection(path string, count, available int) error {
	switch {
	case !PathIsNonEmpty(path):
		return &ValidationError{Kind: EmptyPath}
	case !CountWasChosen(count):
		return &ValidationError{Kind: CountNotChosen}
	case !CountIsPositive(count):
		return &ValidationError{Kind: CountNotPositive}
	case !CountWithinAvailable(count, available):
		return &ValidationError{Kind: CountExceedsAvailable, Available: available}
	}
	return nil
}
