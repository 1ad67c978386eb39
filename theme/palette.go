package theme

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

type RGB [3]uint8

type Palette struct {
	Name   string
	Colors []RGB
}

// Plasma is the built-in palette, used when no .gpl file is configured
func Plasma() *Palette {
	return &Palette{
		Name: "plasma",
		Colors: []RGB{
			{13, 8, 135},
			{65, 4, 157},
			{106, 0, 168},
			{143, 13, 164},
			{177, 42, 144},
			{204, 71, 120},
			{225, 100, 98},
			{242, 132, 75},
			{252, 166, 54},
			{252, 206, 37},
			{240, 249, 33},
		},
	}
}

// Load returns the palette at path, or Plasma when path is empty
func Load(path string) (*Palette, error) {
	if path == "" {
		return Plasma(), nil
	}
	return LoadGPL(path)
}

// LoadGPL reads a GIMP palette file
func LoadGPL(path string) (*Palette, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	p, err := ParseGPL(f)
	if err != nil {
		return nil, fmt.Errorf("palette %s: %w", path, err)
	}
	return p, nil
}

// ParseGPL reads GIMP palette text. Color rows are "R G B [label]" with
// components in 0-255; a row that starts with a number but is not a color
// is an error rather than being skipped.
func ParseGPL(r io.Reader) (*Palette, error) {
	p := &Palette{}
	scanner := bufio.NewScanner(r)
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "", line[0] == '#', line == "GIMP Palette", strings.HasPrefix(line, "Columns:"):
		case strings.HasPrefix(line, "Name:"):
			p.Name = strings.TrimSpace(strings.TrimPrefix(line, "Name:"))
		default:
			c, err := parseRow(strings.Fields(line))
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", n, err)
			}
			p.Colors = append(p.Colors, c)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(p.Colors) == 0 {
		return nil, errors.New("no colors found")
	}
	return p, nil
}

func parseRow(fields []string) (RGB, error) {
	var c RGB
	if len(fields) < 3 {
		return c, fmt.Errorf("want R G B, got %q", strings.Join(fields, " "))
	}
	for i := range c {
		v, err := strconv.ParseUint(fields[i], 10, 8)
		if err != nil {
			return c, fmt.Errorf("component %q: %w", fields[i], err)
		}
		c[i] = uint8(v)
	}
	return c, nil
}

// At returns the color at pos along the palette, clamped to [0,1]
func (p *Palette) At(pos float64) RGB {
	last := len(p.Colors) - 1
	switch {
	case pos <= 0 || last == 0:
		return p.Colors[0]
	case pos >= 1:
		return p.Colors[last]
	}
	x := pos * float64(last)
	i := int(x)
	return p.Colors[i].mix(p.Colors[i+1], x-float64(i))
}

// Cycle maps a loop phase onto the palette out and back, so the color at
// the seam (phase 1) matches the downbeat (phase 0)
func (p *Palette) Cycle(phase float64) RGB {
	phase -= math.Floor(phase)
	return p.At(1 - math.Abs(2*phase-1))
}

func (c RGB) mix(o RGB, t float64) RGB {
	var out RGB
	for i := range c {
		out[i] = uint8(math.Round(float64(c[i]) + (float64(o[i])-float64(c[i]))*t))
	}
	return out
}
