// Package sequence loads note sequences from disk and stores loop projects.
package sequence

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
	"gopkg.in/yaml.v3"

	"go-loop/debug"
	"go-loop/loop"
	"go-loop/midi"
)

// ErrUnsupportedFormat is returned for file extensions Load does not know
var ErrUnsupportedFormat = errors.New("sequence: unsupported format")

// File is a sequence together with the tempo it was recorded at
type File struct {
	Name  string        `json:"name" yaml:"name"`
	Tempo float64       `json:"tempo" yaml:"tempo"`
	Notes loop.Sequence `json:"notes" yaml:"notes"`
}

// Load reads a sequence by extension: .mid/.midi, .yml/.yaml or .json
func Load(path string) (*File, error) {
	ext := strings.ToLower(filepath.Ext(path))
	var (
		f   *File
		err error
	)
	switch ext {
	case ".mid", ".midi":
		f, err = loadSMF(path)
	case ".yml", ".yaml", ".json":
		var r *os.File
		r, err = os.Open(path)
		if err != nil {
			return nil, err
		}
		defer r.Close()
		f, err = Decode(r, ext)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	if f.Name == "" {
		f.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	f.normalize()
	debug.Log("seq", "loaded %s: %d notes at %.1f BPM", path, len(f.Notes), f.Tempo)
	return f, nil
}

// Decode reads a YAML or JSON sequence. format is an extension (".yaml", ".json").
func Decode(r io.Reader, format string) (*File, error) {
	var f File
	switch strings.ToLower(format) {
	case ".yml", ".yaml", "yml", "yaml":
		if err := yaml.NewDecoder(r).Decode(&f); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	case ".json", "json":
		if err := json.NewDecoder(r).Decode(&f); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	f.normalize()
	return &f, nil
}

// Write stores f as YAML or JSON depending on the extension of path
func (f *File) Write(path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		data, err = yaml.Marshal(f)
	case ".json":
		data, err = json.MarshalIndent(f, "", "  ")
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// normalize assigns missing IDs, defaults the tempo and sorts by start
func (f *File) normalize() {
	if f.Tempo <= 0 {
		f.Tempo = loop.DefaultTempo
	}
	for i := range f.Notes {
		if f.Notes[i].ID == "" {
			f.Notes[i].ID = uuid.NewString()
		}
	}
	sort.SliceStable(f.Notes, func(i, j int) bool {
		return f.Notes[i].Start < f.Notes[j].Start
	})
}

type heldKey struct {
	channel, key uint8
}

type heldNote struct {
	start float64
	vel   uint8
}

// loadSMF pairs note starts with note ends across all tracks. Times come from
// the file's tempo map; the first tempo change is the recorded tempo.
func loadSMF(path string) (*File, error) {
	rd, err := smf.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f := &File{Tempo: loop.DefaultTempo}
	if tc := rd.TempoChanges(); len(tc) > 0 {
		f.Tempo = tc[0].BPM
	}

	held := make(map[heldKey][]heldNote)
	var last float64
	emit := func(k heldKey, h heldNote, end float64) {
		f.Notes = append(f.Notes, loop.NoteEvent{
			Pitch: midi.PitchName(k.key),
			Start: h.start,
			Dur:   end - h.start,
			Vel:   float64(h.vel) / 127,
		})
	}

	err = smf.ReadTracks(path).Do(func(ev smf.TrackEvent) {
		at := float64(ev.AbsMicroSeconds) / 1e6
		if at > last {
			last = at
		}
		msg := gomidi.Message(ev.Message)
		var ch, key, vel uint8
		switch {
		case msg.GetNoteStart(&ch, &key, &vel):
			k := heldKey{ch, key}
			held[k] = append(held[k], heldNote{start: at, vel: vel})
		case msg.GetNoteEnd(&ch, &key):
			k := heldKey{ch, key}
			if q := held[k]; len(q) > 0 {
				emit(k, q[0], at)
				held[k] = q[1:]
			}
		}
	}).Error()
	if err != nil {
		return nil, err
	}

	// Notes never released end with the file
	dangling := 0
	for k, q := range held {
		for _, h := range q {
			emit(k, h, last)
			dangling++
		}
	}
	if dangling > 0 {
		debug.Warn("seq", "%s: %d notes without note-off closed at %.3f", path, dangling, last)
	}
	return f, nil
}
