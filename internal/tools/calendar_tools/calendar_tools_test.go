package calendar_tools

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayWindowFromArgs(t *testing.T) {
	t.Run("explicit date", func(t *testing.T) {
		w, err := dayWindowFromArgs(map[string]any{"date": "2025-06-02"})

		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC), w.Start)
		assert.Equal(t, time.Date(2025, 6, 2, 18, 0, 0, 0, time.UTC), w.End)
	})

	t.Run("defaults to today", func(t *testing.T) {
		w, err := dayWindowFromArgs(map[string]any{})

		require.NoError(t, err)
		now := time.Now().UTC()
		assert.Equal(t, now.Year(), w.Start.Year())
		assert.Equal(t, now.YearDay(), w.Start.YearDay())
		assert.Equal(t, 8, w.Start.Hour())
	})

	t.Run("rejects bad format", func(t *testing.T) {
		_, err := dayWindowFromArgs(map[string]any{"date": "02/06/2025"})
		assert.Error(t, err)
	})

	t.Run("earliest moves window open", func(t *testing.T) {
		w, err := dayWindowFromArgs(map[string]any{"date": "2025-06-02", "earliest": "13:30"})

		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, 6, 2, 13, 30, 0, 0, time.UTC), w.Start)
		assert.Equal(t, time.Date(2025, 6, 2, 18, 0, 0, 0, time.UTC), w.End)
	})

	t.Run("rejects bad earliest format", func(t *testing.T) {
		_, err := dayWindowFromArgs(map[string]any{"earliest": "1.30pm"})
		assert.Error(t, err)
	})

	t.Run("rejects earliest past window close", func(t *testing.T) {
		_, err := dayWindowFromArgs(map[string]any{"date": "2025-06-02", "earliest": "19:00"})
		assert.Error(t, err)
	})
}

func TestDurationFromArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    map[string]any
		want    time.Duration
		wantErr bool
	}{
		{"default", map[string]any{}, 30 * time.Minute, false},
		{"explicit", map[string]any{"durationMinutes": float64(45)}, 45 * time.Minute, false},
		{"zero", map[string]any{"durationMinutes": float64(0)}, 0, true},
		{"negative", map[string]any{"durationMinutes": float64(-15)}, 0, true},
		{"wrong type ignored", map[string]any{"durationMinutes": "45"}, 30 * time.Minute, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := durationFromArgs(tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d)
		})
	}
}

func TestTimeArg(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		got, err := timeArg(map[string]any{"start": "2025-06-02T10:00:00Z"}, "start")

		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC), got)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := timeArg(map[string]any{}, "start")
		assert.ErrorContains(t, err, "start is required")
	})

	t.Run("bad format", func(t *testing.T) {
		_, err := timeArg(map[string]any{"start": "10am tomorrow"}, "start")
		assert.Error(t, err)
	})
}

func TestAttendeesFromArgs(t *testing.T) {
	t.Run("none", func(t *testing.T) {
		assert.Nil(t, attendeesFromArgs(map[string]any{}))
	})

	t.Run("comma separated with whitespace", func(t *testing.T) {
		attendees := attendeesFromArgs(map[string]any{
			"attendees": "ada@example.com, grace@example.com , ,",
		})

		require.Len(t, attendees, 2)
		assert.Equal(t, "ada@example.com", attendees[0].EmailAddress.Address)
		assert.Equal(t, "grace@example.com", attendees[1].EmailAddress.Address)
		assert.Equal(t, "required", attendees[0].Type)
	})
}
