package config

import (
	"testing"
	"time"
)

func TestDefaultTemplateValidates(t *testing.T) {
	cfg, err := FromYAML([]byte(GenerateDefault()))
	if err != nil {
		t.Fatalf("default template rejected: %v", err)
	}
	if cfg.Scheduling.DayStart != "09:00" || cfg.Scheduling.DayEnd != "17:00" {
		t.Fatalf("unexpected working window: %s-%s", cfg.Scheduling.DayStart, cfg.Scheduling.DayEnd)
	}
	if len(cfg.Scheduling.ActiveDays) != 5 {
		t.Fatalf("unexpected active days: %v", cfg.Scheduling.ActiveDays)
	}
}

func TestValidateAcceptsDayNameVariants(t *testing.T) {
	cfg := Default()
	for _, days := range [][]string{
		{"Mon", "Tue"},
		{"monday", "friday"},
		{"SAT", "sun"},
	} {
		cfg.Scheduling.ActiveDays = days
		if err := cfg.Validate(); err != nil {
			t.Fatalf("active_days %v rejected: %v", days, err)
		}
	}
	cfg.Scheduling.ActiveDays = []string{"Mon", "noday"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected unknown day to be rejected")
	}
}

func TestParseWeekday(t *testing.T) {
	cases := []struct {
		in   string
		want time.Weekday
	}{
		{"Mon", time.Monday},
		{"monday", time.Monday},
		{"WEDNESDAY", time.Wednesday},
		{"sun", time.Sunday},
	}
	for _, tc := range cases {
		got, ok := ParseWeekday(tc.in)
		if !ok || got != tc.want {
			t.Fatalf("ParseWeekday(%q) = %v, %v; want %v", tc.in, got, ok, tc.want)
		}
	}
	if _, ok := ParseWeekday("xx"); ok {
		t.Fatal("expected xx to be rejected")
	}
}
