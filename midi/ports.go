package midi

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go-loop/debug"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// Port enumeration can hang when CoreMIDI is wedged
const portTimeout = 3 * time.Second

var (
	// ErrPortTimeout means the driver did not answer the port scan in time.
	// Fix on macOS: sudo killall coreaudiod midiserver
	ErrPortTimeout = errors.New("midi: port scan timed out")
	// ErrPortNotFound means no port matched the requested name
	ErrPortNotFound = errors.New("midi: port not found")
)

// Ports is a snapshot of the available port names
type Ports struct {
	In  []string
	Out []string
}

type portsResult struct {
	ins  []drivers.In
	outs []drivers.Out
}

// scan lists ports on a goroutine and gives up after portTimeout
func scan() (portsResult, error) {
	ch := make(chan portsResult, 1)
	go func() {
		ins := gomidi.GetInPorts()
		outs := gomidi.GetOutPorts()
		ch <- portsResult{ins: ins, outs: outs}
	}()

	select {
	case r := <-ch:
		return r, nil
	case <-time.After(portTimeout):
		debug.Warn("midi", "port scan timed out after %s", portTimeout)
		return portsResult{}, ErrPortTimeout
	}
}

// ListPorts returns the names of every input and output port
func ListPorts() (Ports, error) {
	r, err := scan()
	if err != nil {
		return Ports{}, err
	}
	var p Ports
	for _, in := range r.ins {
		p.In = append(p.In, in.String())
	}
	for _, out := range r.outs {
		p.Out = append(p.Out, out.String())
	}
	return p, nil
}

// matchPort picks a port index: exact name first, then a case-insensitive
// substring. An empty want selects the first port.
func matchPort(names []string, want string) int {
	if len(names) == 0 {
		return -1
	}
	if want == "" {
		return 0
	}
	for i, n := range names {
		if n == want {
			return i
		}
	}
	lw := strings.ToLower(want)
	for i, n := range names {
		if strings.Contains(strings.ToLower(n), lw) {
			return i
		}
	}
	return -1
}

// Output is an open output port
type Output struct {
	port drivers.Out
	send Sender
}

// OpenOutput opens the output port matching name (first port if empty)
func OpenOutput(name string) (*Output, error) {
	r, err := scan()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(r.outs))
	for i, o := range r.outs {
		names[i] = o.String()
	}
	idx := matchPort(names, name)
	if idx < 0 {
		return nil, fmt.Errorf("%w: output %q", ErrPortNotFound, name)
	}

	send, err := gomidi.SendTo(r.outs[idx])
	if err != nil {
		return nil, fmt.Errorf("open output %q: %w", names[idx], err)
	}
	debug.Log("midi", "opened output %s", names[idx])
	return &Output{port: r.outs[idx], send: send}, nil
}

// Name returns the port name
func (o *Output) Name() string {
	return o.port.String()
}

// Send writes one message
func (o *Output) Send(msg gomidi.Message) error {
	return o.send(msg)
}

// Close closes the port
func (o *Output) Close() error {
	return o.port.Close()
}

func openInput(name string) (drivers.In, error) {
	r, err := scan()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(r.ins))
	for i, in := range r.ins {
		names[i] = in.String()
	}
	idx := matchPort(names, name)
	if idx < 0 {
		return nil, fmt.Errorf("%w: input %q", ErrPortNotFound, name)
	}
	return r.ins[idx], nil
}
