package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "chat-simulation", cfg.Queue.Name)
	assert.Equal(t, 2*time.Hour, cfg.Queue.JobTimeout)
	assert.True(t, cfg.Queue.WorkerEnabled)
	assert.Equal(t, 5, cfg.Limits.TTS.MaxConcurrent)
	assert.Equal(t, time.Minute, cfg.Limits.Generation.ReservoirRefillInterval)
	assert.Equal(t, 10*time.Second, cfg.Pipeline.TTSDelay)
	assert.Equal(t, 5, cfg.Pipeline.PodcastBatchSize)
	assert.Len(t, cfg.ElevenLabs.MaleVoices, 3)
	assert.True(t, cfg.Gateway.Enabled)
	assert.Equal(t, 40, cfg.Assistant.MaxHistory)
}

func TestLoad_EnvOverrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("QUEUE_NAME", "episodes")
	t.Setenv("QUEUE_CONCURRENCY", "9")
	t.Setenv("GATEWAY_ENABLED", "false")
	t.Setenv("ASSISTANT_MAX_HISTORY", "12")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "episodes", cfg.Queue.Name)
	assert.Equal(t, 9, cfg.Queue.Concurrency)
	assert.False(t, cfg.Gateway.Enabled)
	assert.Equal(t, 12, cfg.Assistant.MaxHistory)
}

func TestLoad_SecretFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	secret := filepath.Join(t.TempDir(), "key")
	require.NoError(t, os.WriteFile(secret, []byte("sk-test\n"), 0o600))
	t.Setenv("ASSISTANT_API_KEY", "")
	t.Setenv("ASSISTANT_API_KEY_FILE", secret)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.Assistant.APIKey)
}

func TestLoadFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	t.Run("explicit file", func(t *testing.T) {
		viper.Reset()
		path := filepath.Join(t.TempDir(), "episodecast.yaml")
		require.NoError(t, os.WriteFile(path, []byte("queue:\n  schedule_cron: \"*/5 * * * *\"\npipeline:\n  max_conversion_chunks: 4\n"), 0o600))

		cfg, err := LoadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "*/5 * * * *", cfg.Queue.ScheduleCron)
		assert.Equal(t, 4, cfg.Pipeline.MaxConversionChunks)
	})

	t.Run("missing file", func(t *testing.T) {
		viper.Reset()
		_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}
