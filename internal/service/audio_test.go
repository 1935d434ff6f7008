package service

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateMP3(t *testing.T) {
	assert.NoError(t, validateMP3([]byte("ID3\x04\x00")))
	assert.NoError(t, validateMP3([]byte{0xFF, 0xFB, 0x90, 0x00}))
	assert.ErrorIs(t, validateMP3([]byte{0xFF}), ErrInvalidAudio)
	assert.ErrorIs(t, validateMP3([]byte(`{"detail":"quota exceeded"}`)), ErrInvalidAudio)
}

func TestMP3Duration_RejectsGarbage(t *testing.T) {
	_, err := mp3Duration([]byte("definitely not audio"))
	assert.Error(t, err)
}

func TestProbeDuration(t *testing.T) {
	segments := [][]byte{[]byte("abc"), []byte("de")}

	t.Run("joined stream", func(t *testing.T) {
		d, err := probeDuration([]byte("abcde"), segments, byteSeconds)
		require.NoError(t, err)
		assert.Equal(t, 5, d)
	})

	t.Run("falls back to segments", func(t *testing.T) {
		probe := func(data []byte) (time.Duration, error) {
			if len(data) == 5 {
				return 0, errors.New("frame sync lost")
			}
			return time.Duration(len(data)) * 1500 * time.Millisecond, nil
		}
		d, err := probeDuration([]byte("abcde"), segments, probe)
		require.NoError(t, err)
		assert.Equal(t, 8, d)
	})

	t.Run("segment error", func(t *testing.T) {
		probe := func([]byte) (time.Duration, error) { return 0, errors.New("bad") }
		_, err := probeDuration([]byte("abcde"), segments, probe)
		assert.Error(t, err)
	})
}
