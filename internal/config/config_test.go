package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "server:\n  port: \"9090\"\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 9, cfg.Scheduling.StartHour)
	assert.Equal(t, 17, cfg.Scheduling.EndHour)
	assert.Equal(t, 60, cfg.Scheduling.SlotMinutes)
	assert.Equal(t, 7*24*time.Hour, cfg.Scheduling.CompletionFollowUp())
	assert.Equal(t, 7*24*time.Hour, cfg.Screening.FollowUpAfter())
	assert.Equal(t, 20, cfg.Chat.HistoryCacheSize)
	assert.Equal(t, time.UTC, cfg.Scheduling.Location())
}

func TestLoadReadsSections(t *testing.T) {
	path := writeConfig(t, `
scheduling:
  timezone: "Europe/Berlin"
  start_hour: 8
  end_hour: 12
  slot_minutes: 30
kafka:
  brokers: "localhost:9092"
  topic: "events"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Scheduling.StartHour)
	assert.Equal(t, 30, cfg.Scheduling.SlotMinutes)
	assert.Equal(t, "Europe/Berlin", cfg.Scheduling.Location().String())
	assert.Equal(t, "events", cfg.Kafka.Topic)
	assert.Equal(t, "mindbridge-go-consumer", cfg.Kafka.GroupID)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLocationFallsBackToUTC(t *testing.T) {
	s := SchedulingConfig{Timezone: "Not/AZone"}
	assert.Equal(t, time.UTC, s.Location())
}
