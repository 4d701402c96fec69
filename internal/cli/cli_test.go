package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tablebook/internal/api"
	"tablebook/internal/database"
	"tablebook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const cliSecret = "cli-secret"

// writeConfig creates a config backed by a temp SQLite file holding seed.
func writeConfig(t *testing.T, seed *models.SlotRecord) string {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "tablebook.db")

	if seed != nil {
		logger := zerolog.New(io.Discard)
		db, err := database.NewDB(dbPath, &logger)
		require.NoError(t, err)
		require.NoError(t, db.Commit(context.Background(), seed))
		require.NoError(t, db.Close())
	}

	cfgPath := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`
storage:
  driver: sqlite
  sqlite_path: %s
auth:
  jwt_secret: %s
logging:
  level: error
`, dbPath, cliSecret)
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o600))
	return cfgPath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func seedRecord() *models.SlotRecord {
	r := models.NewSlotRecord()
	for _, i := range []models.Interval{4, 5, 6} {
		r.Set(models.SlotKey{Table: 1, Date: "2099-01-01", Interval: i}, "a@example.com")
	}
	r.Set(models.SlotKey{Table: 2, Date: "2000-01-01", Interval: 0}, "b@example.com")
	return r
}

func TestTokenCommand(t *testing.T) {
	cfg := writeConfig(t, nil)

	out, err := run(t, "--config", cfg, "token", "--email", "a@example.com", "--access-token", "ya29")
	require.NoError(t, err)

	user, err := api.NewAuthenticator(cliSecret).Parse(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", user.Email)
	assert.Equal(t, "ya29", user.AccessToken)

	_, err = run(t, "--config", cfg, "token")
	assert.Error(t, err)
}

func TestViewCommand(t *testing.T) {
	cfg := writeConfig(t, seedRecord())

	out, err := run(t, "--config", cfg, "view")
	require.NoError(t, err)
	var view map[string]map[string]map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, true, view["1"]["2099-01-01"]["4"])
	assert.NotContains(t, view, "2")

	out, err = run(t, "--config", cfg, "view", "--viewer", "a@example.com")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, "a@example.com", view["1"]["2099-01-01"]["4"])

	out, err = run(t, "--config", cfg, "view", "--raw")
	require.NoError(t, err)
	var record models.SlotRecord
	require.NoError(t, json.Unmarshal([]byte(out), &record))
	assert.Equal(t, 4, record.Len())
}

func TestItineraryCommand(t *testing.T) {
	cfg := writeConfig(t, seedRecord())

	out, err := run(t, "--config", cfg, "itinerary", "--holder", "a@example.com")
	require.NoError(t, err)
	var events []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &events))
	require.Len(t, events, 1)
	assert.Equal(t, "1", events[0]["tableNumber"])
	assert.Equal(t, "2099-01-01T01:00:00Z", events[0]["start"])

	_, err = run(t, "--config", cfg, "itinerary")
	assert.Error(t, err)
}

func TestExportCommand(t *testing.T) {
	cfg := writeConfig(t, seedRecord())
	path := filepath.Join(t.TempDir(), "out.xlsx")

	out, err := run(t, "--config", cfg, "export", "--out", path)
	require.NoError(t, err)
	assert.Equal(t, path, strings.TrimSpace(out))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Reservations")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestPurgeCommand(t *testing.T) {
	cfg := writeConfig(t, seedRecord())

	out, err := run(t, "--config", cfg, "purge")
	require.NoError(t, err)
	assert.Equal(t, "dropped 1 elapsed slots\n", out)

	out, err = run(t, "--config", cfg, "view", "--raw")
	require.NoError(t, err)
	var record models.SlotRecord
	require.NoError(t, json.Unmarshal([]byte(out), &record))
	assert.Equal(t, 3, record.Len())
}

func TestMissingConfig(t *testing.T) {
	_, err := run(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "view")
	assert.Error(t, err)
}

func TestCalendarLogCommand(t *testing.T) {
	cfg := writeConfig(t, seedRecord())

	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(filepath.Dir(cfg), "tablebook.db"), &logger)
	require.NoError(t, err)
	start := time.Date(2099, 1, 1, 1, 0, 0, 0, time.UTC)
	msg := "quota exceeded"
	require.NoError(t, db.RecordCalendarSync(context.Background(), &models.CalendarSync{
		Holder: "a@example.com", TableNumber: 1, Start: start, End: start.Add(45 * time.Minute), Status: models.SyncStatusSent,
	}))
	require.NoError(t, db.RecordCalendarSync(context.Background(), &models.CalendarSync{
		Holder: "b@example.com", TableNumber: 2, Start: start, End: start.Add(15 * time.Minute), Status: models.SyncStatusFailed, LastError: &msg,
	}))
	require.NoError(t, db.Close())

	out, err := run(t, "--config", cfg, "calendar-log")
	require.NoError(t, err)
	var entries []models.CalendarSync
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "b@example.com", entries[0].Holder)

	out, err = run(t, "--config", cfg, "calendar-log", "--status", models.SyncStatusFailed)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].LastError)
	assert.Equal(t, msg, *entries[0].LastError)
}
