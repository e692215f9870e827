package config

import (
	"testing"
	"time"
)

// mustTime builds a time on a known weekday: 2026-08-21 is a Friday.
func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02 15:04", value)
	if err != nil {
		t.Fatalf("bad test time %q: %v", value, err)
	}
	return parsed
}

func TestBlackoutWindowContains(t *testing.T) {
	friday16 := mustTime(t, "2026-08-21 16:30")
	friday10 := mustTime(t, "2026-08-21 10:00")
	monday17 := mustTime(t, "2026-08-17 17:00")
	saturday3 := mustTime(t, "2026-08-22 03:00")

	tests := []struct {
		name   string
		window BlackoutWindow
		at     time.Time
		want   bool
	}{
		{
			name:   "inside window",
			window: BlackoutWindow{Days: []string{"friday"}, Start: "16:00", End: "23:59"},
			at:     friday16,
			want:   true,
		},
		{
			name:   "right day wrong time",
			window: BlackoutWindow{Days: []string{"friday"}, Start: "16:00", End: "23:59"},
			at:     friday10,
			want:   false,
		},
		{
			name:   "wrong day",
			window: BlackoutWindow{Days: []string{"friday"}, Start: "16:00", End: "23:59"},
			at:     monday17,
			want:   false,
		},
		{
			name:   "abbreviated day name",
			window: BlackoutWindow{Days: []string{"fri"}, Start: "16:00", End: "23:59"},
			at:     friday16,
			want:   true,
		},
		{
			name:   "whole day blackout",
			window: BlackoutWindow{Days: []string{"friday"}},
			at:     friday10,
			want:   true,
		},
		{
			name:   "overnight window wraps past midnight",
			window: BlackoutWindow{Days: []string{"saturday"}, Start: "22:00", End: "06:00"},
			at:     saturday3,
			want:   true,
		},
		{
			name:   "any day when days empty",
			window: BlackoutWindow{Start: "16:00", End: "18:00"},
			at:     monday17,
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.window.Contains(tt.at); got != tt.want {
				t.Errorf("Contains(%v) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestMergeEnvironmentWins(t *testing.T) {
	boolTrue := true
	boolFalse := false
	opMax := 80
	envMax := 50

	op := Fragment{
		ConfirmationsRequired:  &boolFalse,
		ConfirmationOperations: []string{"deploy"},
		MaxScaleSize:           &opMax,
	}
	env := Fragment{
		ConfirmationsRequired:  &boolTrue,
		ConfirmationOperations: []string{"scale"},
		MaxScaleSize:           &envMax,
	}

	merged := Merge(op, env)

	if merged.ConfirmationsRequired == nil || !*merged.ConfirmationsRequired {
		t.Error("environment confirmations_required should win")
	}
	if *merged.MaxScaleSize != 50 {
		t.Errorf("max_scale_size = %d, want environment value 50", *merged.MaxScaleSize)
	}
	if len(merged.ConfirmationOperations) != 1 || merged.ConfirmationOperations[0] != "scale" {
		t.Errorf("confirmation_operations = %v, want environment list", merged.ConfirmationOperations)
	}
}

func TestMergeKeepsOperationFieldsWhenEnvUnset(t *testing.T) {
	boolTrue := true
	opMax := 80

	op := Fragment{
		ConfirmationsRequired: &boolTrue,
		MaxScaleSize:          &opMax,
	}

	merged := Merge(op, Fragment{})

	if merged.ConfirmationsRequired == nil || !*merged.ConfirmationsRequired {
		t.Error("operation fragment lost on merge with empty environment")
	}
	if merged.MaxScaleSize == nil || *merged.MaxScaleSize != 80 {
		t.Error("operation max_scale_size lost on merge")
	}
}
