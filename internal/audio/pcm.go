package audio

import (
	"bytes"
	"fmt"
	"math"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"
)

// resampleQuality is passed to beep.Resample. 4 is beep's recommended
// default for speech.
const resampleQuality = 4

// probeWAV reads the header of a WAV payload and returns its duration.
func probeWAV(payload []byte) (time.Duration, beep.Format, error) {
	if len(payload) == 0 {
		return 0, beep.Format{}, ErrEmptyPayload
	}

	streamer, format, err := wav.Decode(bytes.NewReader(payload))
	if err != nil {
		return 0, beep.Format{}, fmt.Errorf("decode wav: %w", err)
	}
	defer streamer.Close()

	return format.SampleRate.D(streamer.Len()), format, nil
}

// renderPCM decodes a WAV payload and renders it as signed 16-bit little
// endian PCM at the given rate and channel count.
func renderPCM(payload []byte, sampleRate, channels int) ([]byte, time.Duration, error) {
	if len(payload) == 0 {
		return nil, 0, ErrEmptyPayload
	}

	streamer, format, err := wav.Decode(bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("decode wav: %w", err)
	}
	defer streamer.Close()

	target := beep.SampleRate(sampleRate)
	var s beep.Streamer = streamer
	if format.SampleRate != target {
		s = beep.Resample(resampleQuality, format.SampleRate, target, s)
	}

	// Source length scaled to the target rate, for preallocation only.
	estimate := int(float64(streamer.Len()) * float64(target) / float64(format.SampleRate))
	out := make([]byte, 0, estimate*channels*2)

	buf := make([][2]float64, 512)
	for {
		n, ok := s.Stream(buf)
		for _, frame := range buf[:n] {
			if channels == 1 {
				out = appendSample(out, (frame[0]+frame[1])/2)
			} else {
				out = appendSample(out, frame[0])
				out = appendSample(out, frame[1])
			}
		}
		if !ok {
			break
		}
	}
	if err := streamer.Err(); err != nil {
		return nil, 0, fmt.Errorf("decode wav: %w", err)
	}

	frames := len(out) / (channels * 2)
	return out, target.D(frames), nil
}

func appendSample(out []byte, v float64) []byte {
	v = math.Max(-1, math.Min(1, v))
	s := int16(v * math.MaxInt16)
	return append(out, byte(s), byte(s>>8))
}
