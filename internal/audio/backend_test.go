package audio

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

// TestOtoConfig tests the oto configuration validation.
func TestOtoConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *OtoConfig)
		expectErr bool
	}{
		{name: "default", mutate: func(c *OtoConfig) {}},
		{name: "48000Hz stereo", mutate: func(c *OtoConfig) { c.SampleRate = 48000; c.Channels = 2 }},
		{name: "invalid sample rate", mutate: func(c *OtoConfig) { c.SampleRate = 22050 }, expectErr: true},
		{name: "invalid channels", mutate: func(c *OtoConfig) { c.Channels = 3 }, expectErr: true},
		{name: "invalid bit depth", mutate: func(c *OtoConfig) { c.BitDepth = 24 }, expectErr: true},
		{name: "invalid buffer", mutate: func(c *OtoConfig) { c.BufferSize = 0 }, expectErr: true},
		{name: "invalid volume", mutate: func(c *OtoConfig) { c.Volume = 1.5 }, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultOtoConfig()
			tt.mutate(&config)
			err := validateConfig(config)
			if (err != nil) != tt.expectErr {
				t.Errorf("validateConfig() error = %v, expectErr %v", err, tt.expectErr)
			}
		})
	}
}

func TestOtoBackend(t *testing.T) {
	backend, err := NewOtoBackend(DefaultOtoConfig())
	if err != nil {
		t.Skipf("No audio device available: %v", err)
	}

	h, err := backend.Decode(makeWAV(44100, 1, 441))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	defer backend.Release(h)

	if err := backend.SetOutputDevice(h, ""); err != nil {
		t.Errorf("Expected default device to be accepted, got %v", err)
	}
	if err := backend.SetOutputDevice(h, "hdmi"); !errors.Is(err, ErrSinkUnsupported) {
		t.Errorf("Expected ErrSinkUnsupported, got %v", err)
	}

	done := make(chan error, 1)
	if err := backend.Play(h, func(err error) { done <- err }); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Playback error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("Playback never completed")
	}
}

func TestExecBackendArgs(t *testing.T) {
	b := &ExecBackend{command: []string{"paplay", "--device=" + DevicePlaceholder, "--raw=false"}}

	tests := []struct {
		device string
		want   []string
	}{
		{device: "", want: []string{"--raw=false"}},
		{device: "alsa_output.usb", want: []string{"--device=alsa_output.usb", "--raw=false"}},
	}

	for _, tt := range tests {
		t.Run(tt.device, func(t *testing.T) {
			if got := b.args(tt.device); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestExecBackend(t *testing.T) {
	tests := []struct {
		name    string
		command []string
		wantErr bool
	}{
		{name: "success", command: []string{"cat"}},
		{name: "failure", command: []string{"false"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewExecBackend(tt.command)
			if err != nil {
				t.Skipf("%s not available: %v", tt.command[0], err)
			}

			h, err := b.Decode(makeWAV(16000, 1, 160))
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			defer b.Release(h)

			done := make(chan error, 1)
			if err := b.Play(h, func(err error) { done <- err }); err != nil {
				t.Fatalf("Play failed: %v", err)
			}

			select {
			case err := <-done:
				if (err != nil) != tt.wantErr {
					t.Errorf("Expected error %v, got %v", tt.wantErr, err)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("Process never exited")
			}
		})
	}
}

func TestExecBackendStop(t *testing.T) {
	b, err := NewExecBackend([]string{"sleep", "10"})
	if err != nil {
		t.Skipf("sleep not available: %v", err)
	}

	h, err := b.Decode(makeWAV(16000, 1, 160))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	done := make(chan error, 1)
	if err := b.Play(h, func(err error) { done <- err }); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	b.Stop(h)

	select {
	case err := <-done:
		if !errors.Is(err, ErrStopped) {
			t.Errorf("Expected ErrStopped, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not kill the process")
	}
	b.Release(h)
}

func TestNullBackend(t *testing.T) {
	b := NewNullBackend()
	h, err := b.Decode(makeWAV(16000, 1, 320))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if h.Duration() != 20*time.Millisecond {
		t.Errorf("Expected 20ms, got %v", h.Duration())
	}

	done := make(chan error, 1)
	start := time.Now()
	_ = b.Play(h, func(err error) { done <- err })
	<-done
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Errorf("Null playback finished too early: %v", elapsed)
	}
}

func TestNewBackend(t *testing.T) {
	if _, err := NewBackend(BackendConfig{Name: "null"}); err != nil {
		t.Errorf("Expected null backend, got %v", err)
	}
	if _, err := NewBackend(BackendConfig{Name: "gramophone"}); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("Expected ErrUnknownBackend, got %v", err)
	}
}
