package midi

import (
	"fmt"
	"sync"

	"go-loop/debug"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// Command is a transport request from a control surface
type Command int

const (
	CommandStart Command = iota
	CommandStop
	CommandToggle
)

func (c Command) String() string {
	switch c {
	case CommandStart:
		return "start"
	case CommandStop:
		return "stop"
	case CommandToggle:
		return "toggle"
	default:
		return fmt.Sprintf("Command(%d)", int(c))
	}
}

// ControlMap assigns notes (and a footswitch CC) to commands. -1 disables an entry.
type ControlMap struct {
	StartNote  int `json:"startNote"`
	StopNote   int `json:"stopNote"`
	ToggleNote int `json:"toggleNote"`
	ToggleCC   int `json:"toggleCC"` // e.g. 64 for a sustain pedal
}

// DefaultControlMap uses C1/D1/E1 and the sustain pedal
func DefaultControlMap() ControlMap {
	return ControlMap{StartNote: 24, StopNote: 26, ToggleNote: 28, ToggleCC: 64}
}

// Lookup maps an incoming message to a command
func (m ControlMap) Lookup(msg gomidi.Message) (Command, bool) {
	var ch, note, vel, cc, val uint8
	switch {
	case msg.GetNoteOn(&ch, &note, &vel) && vel > 0:
		switch int(note) {
		case m.StartNote:
			return CommandStart, true
		case m.StopNote:
			return CommandStop, true
		case m.ToggleNote:
			return CommandToggle, true
		}
	case msg.GetControlChange(&ch, &cc, &val):
		// Pedal down only
		if int(cc) == m.ToggleCC && val >= 64 {
			return CommandToggle, true
		}
	}
	return 0, false
}

// Control listens on an input port and emits mapped commands
type Control struct {
	cmap     ControlMap
	commands chan Command
	stopFunc func()
	once     sync.Once
}

func newControl(m ControlMap) *Control {
	return &Control{cmap: m, commands: make(chan Command, 16)}
}

// ListenControl opens the input port matching name and starts listening
func ListenControl(name string, m ControlMap) (*Control, error) {
	in, err := openInput(name)
	if err != nil {
		return nil, err
	}

	c := newControl(m)
	stop, err := gomidi.ListenTo(in, c.handle)
	if err != nil {
		return nil, fmt.Errorf("open input %q: %w", in.String(), err)
	}
	c.stopFunc = stop
	debug.Log("midi", "listening for control on %s", in.String())
	return c, nil
}

func (c *Control) handle(msg gomidi.Message, timestampms int32) {
	cmd, ok := c.cmap.Lookup(msg)
	if !ok {
		return
	}
	select {
	case c.commands <- cmd:
		debug.Log("midi", "control %s from %s", cmd, msg)
	default:
		// Drop if the consumer is behind
	}
}

// Commands returns the command stream; closed by Close
func (c *Control) Commands() <-chan Command {
	return c.commands
}

// Close stops listening
func (c *Control) Close() error {
	c.once.Do(func() {
		if c.stopFunc != nil {
			c.stopFunc()
		}
		close(c.commands)
	})
	return nil
}
