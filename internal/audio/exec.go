package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// DevicePlaceholder in an exec command template is replaced by the clip's
// output device id. Arguments containing it are dropped when the clip
// targets the system default.
const DevicePlaceholder = "{device}"

// DefaultExecCommand plays a WAV stream from stdin through PulseAudio.
var DefaultExecCommand = []string{"paplay", "--device=" + DevicePlaceholder}

// ExecBackend plays clips by piping them into an external player process.
// Unlike oto it can route each clip to its own output device.
type ExecBackend struct {
	command []string
}

// NewExecBackend validates the command template and checks that the
// program exists.
func NewExecBackend(command []string) (*ExecBackend, error) {
	if len(command) == 0 {
		command = DefaultExecCommand
	}
	if _, err := exec.LookPath(command[0]); err != nil {
		return nil, fmt.Errorf("%s command not found in PATH: %w", command[0], err)
	}
	return &ExecBackend{command: command}, nil
}

type execHandle struct {
	payload  []byte
	duration time.Duration
	deviceID string

	mu     sync.Mutex
	cancel context.CancelFunc
	stderr bytes.Buffer
}

func (h *execHandle) Duration() time.Duration { return h.duration }

// Name implements Backend.
func (b *ExecBackend) Name() string { return "exec:" + b.command[0] }

// Decode validates the WAV header. The payload is handed to the player
// process unchanged.
func (b *ExecBackend) Decode(payload []byte) (Handle, error) {
	duration, _, err := probeWAV(payload)
	if err != nil {
		return nil, err
	}
	return &execHandle{payload: payload, duration: duration}, nil
}

// SetOutputDevice records the device for the next Play.
func (b *ExecBackend) SetOutputDevice(h Handle, deviceID string) error {
	eh, ok := h.(*execHandle)
	if !ok {
		return fmt.Errorf("exec: unexpected handle %T", h)
	}
	eh.deviceID = deviceID
	return nil
}

// args expands the command template for a device.
func (b *ExecBackend) args(deviceID string) []string {
	out := make([]string, 0, len(b.command)-1)
	for _, arg := range b.command[1:] {
		if strings.Contains(arg, DevicePlaceholder) {
			if deviceID == "" {
				continue
			}
			arg = strings.ReplaceAll(arg, DevicePlaceholder, deviceID)
		}
		out = append(out, arg)
	}
	return out
}

// Play starts the player process with the payload on stdin.
func (b *ExecBackend) Play(h Handle, done func(error)) error {
	eh, ok := h.(*execHandle)
	if !ok {
		return fmt.Errorf("exec: unexpected handle %T", h)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, b.command[0], b.args(eh.deviceID)...)

	// Stdin is set up before the process starts.
	cmd.Stdin = bytes.NewReader(eh.payload)
	cmd.Stderr = &eh.stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("failed to start %s: %w", b.command[0], err)
	}

	eh.mu.Lock()
	eh.cancel = cancel
	eh.mu.Unlock()

	go func() {
		err := cmd.Wait()
		stopped := ctx.Err() != nil
		cancel()
		switch {
		case stopped:
			done(ErrStopped)
		case err != nil:
			if msg := strings.TrimSpace(eh.stderr.String()); msg != "" {
				err = fmt.Errorf("%w: %s", err, msg)
			}
			done(fmt.Errorf("%s: %w", b.command[0], err))
		default:
			done(nil)
		}
	}()
	return nil
}

// Stop kills the player process.
func (b *ExecBackend) Stop(h Handle) {
	eh, ok := h.(*execHandle)
	if !ok {
		return
	}
	eh.mu.Lock()
	defer eh.mu.Unlock()
	if eh.cancel != nil {
		eh.cancel()
	}
}

// Release kills the process if it is still running and drops the payload.
func (b *ExecBackend) Release(h Handle) {
	b.Stop(h)
	if eh, ok := h.(*execHandle); ok {
		eh.payload = nil
	}
}
