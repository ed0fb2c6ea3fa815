package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorConstants(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"ErrInvalidArgument", ErrInvalidArgument, "invalid argument"},
		{"ErrNotFound", ErrNotFound, "not found"},
		{"ErrConflict", ErrConflict, "conflict"},
		{"ErrConnectionLost", ErrConnectionLost, "connection lost"},
		{"ErrModerationBlocked", ErrModerationBlocked, "moderation blocked"},
		{"ErrInternal", ErrInternal, "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.expected {
				t.Errorf("Expected %s to be %q, got %q", tt.name, tt.expected, tt.err.Error())
			}
		})
	}
}

func TestErrorIs(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		target   error
		expected bool
	}{
		{"ErrInvalidArgument is ErrInvalidArgument", ErrInvalidArgument, ErrInvalidArgument, true},
		{"ErrNotFound is ErrNotFound", ErrNotFound, ErrNotFound, true},
		{"ErrConnectionLost is ErrConnectionLost", ErrConnectionLost, ErrConnectionLost, true},
		{"wrapped ErrConnectionLost still matches", fmt.Errorf("amqp dial: %w", ErrConnectionLost), ErrConnectionLost, true},
		{"wrapped ErrModerationBlocked still matches", fmt.Errorf("prompt rejected: %w", ErrModerationBlocked), ErrModerationBlocked, true},
		{"ErrInvalidArgument is not ErrNotFound", ErrInvalidArgument, ErrNotFound, false},
		{"ErrNotFound is not ErrConflict", ErrNotFound, ErrConflict, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if errors.Is(tt.err, tt.target) != tt.expected {
				t.Errorf("Expected errors.Is(%v, %v) to be %v, got %v", tt.err, tt.target, tt.expected, !tt.expected)
			}
		})
	}
}
