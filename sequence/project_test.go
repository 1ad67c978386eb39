package sequence

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-loop/loop"
)

func newTestStore(t *testing.T) (*Store, *time.Time) {
	t.Helper()
	clock := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	s := NewStore(t.TempDir())
	s.now = func() time.Time { return clock }
	return s, &clock
}

func testProject() Project {
	cfg := loop.DefaultConfig()
	cfg.Start, cfg.End = 0, 4
	cfg.SwingAmount = 0.3
	return Project{
		Config: cfg,
		Sequence: File{
			Name:  "groove",
			Tempo: 100,
			Notes: loop.Sequence{{ID: "n", Pitch: "C4", Start: 1, Dur: 0.5, Vel: 0.7}},
		},
	}
}

func TestStoreSaveAndLoadLatest(t *testing.T) {
	s, clock := newTestStore(t)

	first, err := s.Save("my song", "", testProject())
	require.NoError(t, err)
	assert.Equal(t, "2025-03-14_09-26-53.json", first.Filename)

	*clock = clock.Add(time.Minute)
	p := testProject()
	p.Config.SwingAmount = 0.6
	second, err := s.Save("my song", "take two", p)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-14_09-27-53_take-two.json", second.Filename)
	assert.Equal(t, "take-two", second.Name)

	projects, err := s.Projects()
	require.NoError(t, err)
	assert.Equal(t, []string{"my-song"}, projects)

	saves, err := s.Saves("my song")
	require.NoError(t, err)
	require.Len(t, saves, 2)
	assert.Equal(t, second.Filename, saves[0].Filename)

	got, err := s.Load("my song", "")
	require.NoError(t, err)
	assert.Equal(t, 0.6, got.Config.SwingAmount)
	assert.Equal(t, p.Sequence, got.Sequence)

	got, err = s.Load("my song", first.Filename)
	require.NoError(t, err)
	assert.Equal(t, 0.3, got.Config.SwingAmount)
}

func TestStoreEmpty(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "missing"))

	projects, err := s.Projects()
	require.NoError(t, err)
	assert.Empty(t, projects)

	saves, err := s.Saves("nothing")
	require.NoError(t, err)
	assert.Empty(t, saves)

	_, err = s.Load("nothing", "")
	assert.ErrorIs(t, err, ErrNoSaves)
}

func TestStoreIgnoresForeignFiles(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Save("p", "", testProject())
	require.NoError(t, err)

	dir := filepath.Join(s.Dir, "p")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "backup.json"), nil, 0644))

	saves, err := s.Saves("p")
	require.NoError(t, err)
	assert.Len(t, saves, 1)
}

func TestStoreRenameAndDelete(t *testing.T) {
	s, _ := newTestStore(t)
	info, err := s.Save("p", "draft", testProject())
	require.NoError(t, err)

	renamed, err := s.RenameSave("p", info.Filename, "final: mix")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-14_09-26-53_final--mix.json", renamed)

	saves, err := s.Saves("p")
	require.NoError(t, err)
	require.Len(t, saves, 1)
	assert.Equal(t, "final--mix", saves[0].Name)

	require.NoError(t, s.DeleteSave("p", renamed))
	saves, err = s.Saves("p")
	require.NoError(t, err)
	assert.Empty(t, saves)

	_, err = s.RenameSave("p", "junk.json", "x")
	assert.Error(t, err)
}

func TestParseSaveName(t *testing.T) {
	info, ok := parseSaveName("2024-01-15_14-30-00_name.json")
	require.True(t, ok)
	assert.Equal(t, "name", info.Name)
	assert.Equal(t, 14, info.Timestamp.Hour())

	info, ok = parseSaveName("2024-01-15_14-30-00.json")
	require.True(t, ok)
	assert.Empty(t, info.Name)

	_, ok = parseSaveName("2024-01-15.json")
	assert.False(t, ok)
	_, ok = parseSaveName("2024-01-15_14-30-00.yaml")
	assert.False(t, ok)
}
