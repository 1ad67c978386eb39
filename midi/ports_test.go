package midi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchPort(t *testing.T) {
	names := []string{"Midi Through Port-0", "IAC Driver Bus 1", "Digitone MIDI 1"}

	tests := []struct {
		want string
		idx  int
	}{
		{"", 0},
		{"IAC Driver Bus 1", 1},
		{"digitone", 2},
		{"bus", 1},
		{"Minilogue", -1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.idx, matchPort(names, tt.want), tt.want)
	}
	assert.Equal(t, -1, matchPort(nil, ""))
}
