package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"go-loop/config"
	"go-loop/loop"
	"go-loop/midi"
	"go-loop/sequence"
	"go-loop/transport"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	var err error
	switch os.Args[1] {
	case "ports":
		err = listPorts()
	case "schedule":
		err = dumpSchedule(os.Args[2:])
	case "ping":
		err = ping(os.Args[2:])
	case "monitor":
		err = monitor(os.Args[2:])
	default:
		usage()
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Loop Tools")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  ports                          - List all MIDI ports")
	fmt.Println("  schedule <file> [loops] [bpm]  - Print the MIDI a loop would send")
	fmt.Println("  ping [output]                  - Play a test note")
	fmt.Println("  monitor [input]                - Print control commands as they arrive")
}

func listPorts() error {
	fmt.Println("(waiting up to 3 seconds...)")
	ports, err := midi.ListPorts()
	if err != nil {
		fmt.Println("Fix: sudo killall coreaudiod midiserver")
		return err
	}

	fmt.Println("=== MIDI Input Ports ===")
	for i, p := range ports.In {
		fmt.Printf("  %d: %s\n", i, p)
	}
	fmt.Println("\n=== MIDI Output Ports ===")
	for i, p := range ports.Out {
		fmt.Printf("  %d: %s\n", i, p)
	}
	return nil
}

// dumpSchedule runs the loop on a virtual clock and prints every message
func dumpSchedule(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("schedule needs a sequence file")
	}
	f, err := sequence.Load(args[0])
	if err != nil {
		return err
	}

	loops := 2
	if len(args) > 1 {
		if loops, err = strconv.Atoi(args[1]); err != nil || loops < 1 {
			return fmt.Errorf("bad loop count %q", args[1])
		}
	}
	bpm := f.Tempo
	if len(args) > 2 {
		if bpm, err = strconv.ParseFloat(args[2], 64); err != nil {
			return fmt.Errorf("bad tempo %q", args[2])
		}
	}

	tr := transport.NewManual()
	printMsg := func(msg gomidi.Message) error {
		fmt.Printf("%8.3fs  %s\n", tr.Now(), msg)
		return nil
	}
	engine := midi.NewEngine(printMsg, tr, 1)

	cfg := config.DefaultConfig().Loop.ToLoopConfig(f.Tempo, bpm)
	cfg.MaxLoops = loops
	ctrl := loop.NewController(tr, engine, cfg)
	start, end := ctrl.AutoDetectBounds(f.Notes)
	fmt.Printf("%s: %d notes, loop %.3f-%.3fs, %.1f -> %.1f BPM, %d loops\n\n",
		f.Name, len(f.Notes), start, end, f.Tempo, bpm, loops)

	if err := ctrl.Start(f.Notes, ctrl.Config()); err != nil {
		return err
	}
	tr.Drain()

	if n := ctrl.LastDropped(); n > 0 {
		fmt.Printf("\n%d notes dropped as inaudible\n", n)
	}
	return nil
}

func ping(args []string) error {
	name := ""
	if len(args) > 0 {
		name = args[0]
	}
	out, err := midi.OpenOutput(name)
	if err != nil {
		return err
	}
	defer out.Close()

	rt := transport.NewRealtime()
	defer rt.Close()
	engine := midi.NewEngine(out.Send, rt, 1)
	defer engine.Close()

	fmt.Printf("Playing C4 on %s\n", out.Name())
	engine.TriggerNote("C4", 0.5, rt.Now(), 0.8)
	time.Sleep(600 * time.Millisecond)
	return nil
}

func monitor(args []string) error {
	name := ""
	if len(args) > 0 {
		name = args[0]
	}
	ctl, err := midi.ListenControl(name, midi.DefaultControlMap())
	if err != nil {
		return err
	}
	defer ctl.Close()

	fmt.Println("Listening (Ctrl+C to stop)...")
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)

	for {
		select {
		case cmd, ok := <-ctl.Commands():
			if !ok {
				return nil
			}
			fmt.Printf("[%s] %s\n", time.Now().Format("15:04:05.000"), cmd)
		case <-sig:
			return nil
		}
	}
}
