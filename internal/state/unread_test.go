package state_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opconsole/internal/state"
)

func TestShouldIncrementUnread(t *testing.T) {
	tests := []struct {
		name         string
		fromOperator bool
		chatID       int64
		selectedID   int64
		want         bool
	}{
		{"CustomerMessageInBackgroundChat", false, 42, 7, true},
		{"CustomerMessageNothingSelected", false, 42, 0, true},
		{"CustomerMessageInOpenChat", false, 42, 42, false},
		{"OperatorEcho", true, 42, 7, false},
		{"OperatorEchoInOpenChat", true, 42, 42, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := state.ShouldIncrementUnread(tt.fromOperator, tt.chatID, tt.selectedID)
			assert.Equal(t, tt.want, got)
		})
	}
}
