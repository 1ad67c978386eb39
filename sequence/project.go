package sequence

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go-loop/debug"
	"go-loop/loop"
)

const timestampFormat = "2006-01-02_15-04-05"

// ErrNoSaves is returned when loading the latest save of an empty project
var ErrNoSaves = errors.New("sequence: no saves")

// Project is everything needed to restore a loop: its settings and its notes
type Project struct {
	Config   loop.Config `json:"config"`
	Sequence File        `json:"sequence"`
}

// SaveInfo represents a saved project file (for listing)
type SaveInfo struct {
	Filename  string
	Name      string // parsed from filename (empty if unnamed)
	Timestamp time.Time
}

// Store keeps projects as folders of timestamped JSON saves
type Store struct {
	Dir string
	now func() time.Time
}

// NewStore creates a store rooted at dir
func NewStore(dir string) *Store {
	return &Store{Dir: dir, now: time.Now}
}

// DefaultStore uses ~/.config/go-loop/projects
func DefaultStore() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return NewStore(filepath.Join(home, ".config", "go-loop", "projects")), nil
}

func (s *Store) projectDir(project string) string {
	return filepath.Join(s.Dir, sanitizeFilename(project))
}

// Projects returns all project folder names
func (s *Store) Projects() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}

	var projects []string
	for _, entry := range entries {
		if entry.IsDir() {
			projects = append(projects, entry.Name())
		}
	}
	sort.Strings(projects)
	return projects, nil
}

// Saves returns timestamped saves for a project, newest first
func (s *Store) Saves(project string) ([]SaveInfo, error) {
	entries, err := os.ReadDir(s.projectDir(project))
	if err != nil {
		if os.IsNotExist(err) {
			return []SaveInfo{}, nil
		}
		return nil, err
	}

	var saves []SaveInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if info, ok := parseSaveName(entry.Name()); ok {
			saves = append(saves, info)
		}
	}

	sort.Slice(saves, func(i, j int) bool {
		return saves[i].Timestamp.After(saves[j].Timestamp)
	})
	return saves, nil
}

// parseSaveName reads 2024-01-15_14-30-00.json or 2024-01-15_14-30-00_name.json
func parseSaveName(filename string) (SaveInfo, bool) {
	if !strings.HasSuffix(filename, ".json") {
		return SaveInfo{}, false
	}
	base := strings.TrimSuffix(filename, ".json")
	if len(base) < len(timestampFormat) {
		return SaveInfo{}, false
	}
	ts, err := time.Parse(timestampFormat, base[:len(timestampFormat)])
	if err != nil {
		return SaveInfo{}, false
	}

	name := ""
	if rest := base[len(timestampFormat):]; len(rest) > 1 && rest[0] == '_' {
		name = rest[1:]
	}
	return SaveInfo{Filename: filename, Name: name, Timestamp: ts}, true
}

// Save writes p to a new timestamped file in the project folder
func (s *Store) Save(project, label string, p Project) (SaveInfo, error) {
	if project == "" {
		project = "untitled"
	}
	dir := s.projectDir(project)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return SaveInfo{}, err
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return SaveInfo{}, err
	}

	ts := s.now()
	filename := ts.Format(timestampFormat)
	if label != "" {
		filename += "_" + sanitizeFilename(label)
	}
	filename += ".json"

	if err := os.WriteFile(filepath.Join(dir, filename), data, 0644); err != nil {
		return SaveInfo{}, err
	}
	debug.Log("seq", "saved project %s/%s", project, filename)
	info, _ := parseSaveName(filename)
	return info, nil
}

// Load reads a specific save, or the most recent one if filename is empty
func (s *Store) Load(project, filename string) (*Project, error) {
	if filename == "" {
		saves, err := s.Saves(project)
		if err != nil {
			return nil, err
		}
		if len(saves) == 0 {
			return nil, fmt.Errorf("%w in project %s", ErrNoSaves, project)
		}
		filename = saves[0].Filename
	}

	data, err := os.ReadFile(filepath.Join(s.projectDir(project), filename))
	if err != nil {
		return nil, err
	}

	var p Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("load %s/%s: %w", project, filename, err)
	}
	p.Sequence.normalize()
	return &p, nil
}

// DeleteSave deletes a specific save file
func (s *Store) DeleteSave(project, filename string) error {
	return os.Remove(filepath.Join(s.projectDir(project), filename))
}

// RenameSave changes the name part of a save, keeping its timestamp
func (s *Store) RenameSave(project, oldFilename, newName string) (string, error) {
	info, ok := parseSaveName(oldFilename)
	if !ok {
		return "", fmt.Errorf("invalid save filename %q", oldFilename)
	}

	newFilename := info.Timestamp.Format(timestampFormat)
	if newName != "" {
		newFilename += "_" + sanitizeFilename(newName)
	}
	newFilename += ".json"

	dir := s.projectDir(project)
	return newFilename, os.Rename(filepath.Join(dir, oldFilename), filepath.Join(dir, newFilename))
}

// sanitizeFilename removes/replaces characters that are problematic in filenames
func sanitizeFilename(name string) string {
	r := strings.NewReplacer(
		" ", "-", "/", "-", "\\", "-", ":", "-",
		"*", "", "?", "", "\"", "", "<", "", ">", "", "|", "",
	)
	return r.Replace(name)
}
