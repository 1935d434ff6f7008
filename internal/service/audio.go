package service

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/hajimehoshi/go-mp3"
)

// ErrInvalidAudio means a synthesized segment is not usable MP3 data.
var ErrInvalidAudio = errors.New("invalid audio buffer")

// validateMP3 checks that data starts with an ID3 tag or an MPEG frame header.
func validateMP3(data []byte) error {
	if len(data) < 3 {
		return fmt.Errorf("%w: %d bytes", ErrInvalidAudio, len(data))
	}
	if bytes.HasPrefix(data, []byte("ID3")) {
		return nil
	}
	if data[0] == 0xFF && data[1]&0xE0 == 0xE0 {
		return nil
	}
	return fmt.Errorf("%w: no MP3 header", ErrInvalidAudio)
}

// mp3Duration decodes data far enough to know its playing time.
func mp3Duration(data []byte) (time.Duration, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("failed to read mp3: %w", err)
	}
	rate := dec.SampleRate()
	if rate <= 0 {
		return 0, fmt.Errorf("failed to read mp3: bad sample rate %d", rate)
	}
	// go-mp3 always decodes to 16-bit stereo.
	samples := dec.Length() / 4
	return time.Duration(float64(samples) / float64(rate) * float64(time.Second)), nil
}

// probeDuration measures the joined audio, falling back to the sum of the
// segments when the joined stream cannot be decoded as one.
func probeDuration(joined []byte, segments [][]byte, probe func([]byte) (time.Duration, error)) (int, error) {
	if d, err := probe(joined); err == nil && d > 0 {
		return roundSeconds(d), nil
	}

	var total time.Duration
	for i, seg := range segments {
		d, err := probe(seg)
		if err != nil {
			return 0, fmt.Errorf("segment %d: %w", i, err)
		}
		total += d
	}
	return roundSeconds(total), nil
}

func roundSeconds(d time.Duration) int {
	return int(math.Round(d.Seconds()))
}
