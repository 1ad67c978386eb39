package midi

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrBadPitch is returned for pitch symbols that cannot be parsed
var ErrBadPitch = errors.New("midi: bad pitch")

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

var letterSemitones = map[byte]int{
	'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11,
}

// ParsePitch converts a symbol like "C4", "F#3" or "Bb-1" to a MIDI note number.
// C4 is 60. A bare number ("64") is accepted as-is.
func ParsePitch(s string) (uint8, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrBadPitch)
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 || n > 127 {
			return 0, fmt.Errorf("%w: %q out of range", ErrBadPitch, s)
		}
		return uint8(n), nil
	}

	semi, ok := letterSemitones[strings.ToUpper(s[:1])[0]]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrBadPitch, s)
	}
	rest := s[1:]
	for len(rest) > 0 && (rest[0] == '#' || rest[0] == 'b') {
		if rest[0] == '#' {
			semi++
		} else {
			semi--
		}
		rest = rest[1:]
	}

	octave, err := strconv.Atoi(rest)
	if err != nil {
		return 0, fmt.Errorf("%w: %q has no octave", ErrBadPitch, s)
	}
	n := (octave+1)*12 + semi
	if n < 0 || n > 127 {
		return 0, fmt.Errorf("%w: %q out of range", ErrBadPitch, s)
	}
	return uint8(n), nil
}

// PitchName returns the sharp spelling of a note number, e.g. 61 -> "C#4"
func PitchName(note uint8) string {
	return fmt.Sprintf("%s%d", noteNames[note%12], int(note)/12-1)
}
