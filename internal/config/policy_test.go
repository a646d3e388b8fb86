package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writePolicyFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	return path
}

func TestLoadPolicyDefaults(t *testing.T) {
	t.Parallel()

	policy, err := LoadPolicy(writePolicyFile(t, "keywords:\n  - badword\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if policy.Probability != 0.1 {
		t.Fatalf("probability = %v, want default 0.1", policy.Probability)
	}
	if policy.ScanSchedule != "@every 1h" {
		t.Fatalf("schedule = %q, want default", policy.ScanSchedule)
	}
	if policy.MuteThreshold != 3 {
		t.Fatalf("threshold = %d, want default 3", policy.MuteThreshold)
	}
	if policy.MuteDuration() != 10*time.Minute {
		t.Fatalf("mute duration = %v, want default 10m", policy.MuteDuration())
	}
	if len(policy.Messages.Warn) == 0 || len(policy.Messages.ScanSummary) == 0 {
		t.Fatalf("message defaults not applied: %+v", policy.Messages)
	}
}

func TestLoadPolicyStringOrListTemplates(t *testing.T) {
	t.Parallel()

	policy, err := LoadPolicy(writePolicyFile(t, `
messages:
  warn: "single"
  mute:
    - "first"
    - "second"
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(policy.Messages.Warn) != 1 || policy.Messages.Warn[0] != "single" {
		t.Fatalf("warn = %v", policy.Messages.Warn)
	}
	if len(policy.Messages.Mute) != 2 {
		t.Fatalf("mute = %v", policy.Messages.Mute)
	}
}

func TestLoadPolicyRejectsInvalidValues(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{"probability above one", "probability: 1.5\n", "probability"},
		{"bad schedule", "scan_schedule: \"not a schedule\"\n", "scan schedule"},
		{"zero threshold", "mute_threshold: -1\n", "mute threshold"},
		{"short mute", "mute_duration_seconds: 5\n", "mute duration"},
		{"blank keyword", "keywords:\n  - \"  \"\n", "keyword"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := LoadPolicy(writePolicyFile(t, tc.content))
			if err == nil {
				t.Fatalf("expected error for %q", tc.content)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err = %v, want mention of %q", err, tc.wantErr)
			}
		})
	}
}

func TestLoadPolicyRejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	if _, err := LoadPolicy(writePolicyFile(t, "not_a_real_key: true\n")); err == nil {
		t.Fatalf("expected error for unknown key")
	}
}
