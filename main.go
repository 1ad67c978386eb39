package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver

	"go-loop/config"
	"go-loop/debug"
	"go-loop/midi"
	"go-loop/player"
	"go-loop/sequence"
	"go-loop/theme"
	"go-loop/transport"
	"go-loop/tui"
)

func main() {
	palettePath := flag.String("palette", "", "GIMP .gpl palette for the TUI")
	project := flag.String("project", "", "project name for saves")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: go-loop [flags] [sequence.yaml|.json|.mid]")
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := run(flag.Arg(0), *palettePath, *project); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(path, palettePath, project string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.Debug {
		if err := debug.Enable(); err != nil {
			return err
		}
		defer debug.Disable()
	}

	// Load theme
	palette, err := theme.Load(palettePath)
	if err != nil {
		return fmt.Errorf("palette: %w", err)
	}
	th := theme.New(palette)

	rt := transport.NewRealtime()
	defer rt.Close()

	out, err := midi.OpenOutput(cfg.Output.PortName)
	if err != nil {
		return err
	}
	defer out.Close()

	engine := midi.NewEngine(out.Send, rt, cfg.Output.Channel)
	defer engine.Close()

	store, err := sequence.DefaultStore()
	if err != nil {
		debug.Warn("main", "project saves disabled: %v", err)
		store = nil
	}

	manager := player.NewManager(rt, engine, cfg.Loop, store)
	if cfg.UI.LastTempo > 0 {
		manager.SetTempo(cfg.UI.LastTempo)
	}
	manager.StartRuntime()
	defer manager.Close()

	if path != "" {
		f, err := sequence.Load(path)
		if err != nil {
			return err
		}
		manager.SetSequence(f)
	} else if cfg.UI.LastProject != "" && store != nil {
		if err := manager.LoadProject(cfg.UI.LastProject); err != nil {
			debug.Warn("main", "last project %s: %v", cfg.UI.LastProject, err)
		}
	}

	if cfg.Control.Enabled {
		ctl, err := midi.ListenControl(cfg.Control.PortName, cfg.Control.Map)
		if err != nil {
			debug.Warn("main", "control input disabled: %v", err)
		} else {
			defer ctl.Close()
			go manager.RunControl(ctl.Commands())
		}
	}

	if project == "" {
		project = cfg.UI.LastProject
	}

	fmt.Println("go-loop")
	fmt.Printf("Output: %s (channel %d)\n", out.Name(), cfg.Output.Channel)

	// Create and run TUI
	m := tui.NewModel(manager, th, project)
	p := tea.NewProgram(m, tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return err
	}

	// Remember where we left off
	cfg.UI.LastTempo = manager.Tempo()
	if fm, ok := final.(tui.Model); ok {
		cfg.UI.LastProject = fm.Project
	}
	if err := cfg.Save(); err != nil {
		debug.Warn("main", "config not saved: %v", err)
	}
	return nil
}
