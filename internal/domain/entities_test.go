package domain

import (
	"testing"
	"time"
)

func TestJobStatusConstants(t *testing.T) {
	tests := []struct {
		name     string
		constant JobStatus
		expected string
	}{
		{"JobQueued", JobQueued, "queued"},
		{"JobAssigned", JobAssigned, "assigned"},
		{"JobRunning", JobRunning, "running"},
		{"JobSucceeded", JobSucceeded, "succeeded"},
		{"JobFailed", JobFailed, "failed"},
		{"JobStopped", JobStopped, "stopped"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if string(tt.constant) != tt.expected {
				t.Errorf("Expected %s to be %q, got %q", tt.name, tt.expected, string(tt.constant))
			}
		})
	}
}

func TestJobStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   JobStatus
		terminal bool
	}{
		{JobQueued, false},
		{JobAssigned, false},
		{JobRunning, false},
		{JobSucceeded, true},
		{JobFailed, true},
		{JobStopped, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsTerminal(); got != tt.terminal {
				t.Errorf("IsTerminal(%q) = %v, want %v", tt.status, got, tt.terminal)
			}
		})
	}
}

func TestJobStatus_Valid(t *testing.T) {
	for _, s := range []JobStatus{JobQueued, JobAssigned, JobRunning, JobSucceeded, JobFailed, JobStopped} {
		if !s.Valid() {
			t.Errorf("expected %q to be valid", s)
		}
	}
	if JobStatus("cancelled").Valid() {
		t.Error("expected unknown status to be invalid")
	}
	if JobStatus("").Valid() {
		t.Error("expected empty status to be invalid")
	}
}

func TestJobType_Valid(t *testing.T) {
	if !JobTypeTextToImage.Valid() || !JobTypeTextToPortrait.Valid() {
		t.Error("expected known job types to be valid")
	}
	if JobType("text-to-video").Valid() {
		t.Error("expected unknown job type to be invalid")
	}
}

func TestJob_Expired(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	threshold := 24 * time.Hour

	tests := []struct {
		name      string
		createdAt time.Time
		expired   bool
	}{
		{"fresh", now.Add(-time.Minute), false},
		{"at threshold", now.Add(-threshold), false},
		{"just over", now.Add(-threshold - time.Second), true},
		{"twice threshold", now.Add(-2 * threshold), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := Job{CreatedAt: tt.createdAt}
			if got := j.Expired(now, threshold); got != tt.expired {
				t.Errorf("Expired(%v) = %v, want %v", tt.createdAt, got, tt.expired)
			}
		})
	}
}

func TestJob_Expired_NonUTCCreatedAt(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	// 11:30 UTC expressed as 13:30 +02:00; 30 minutes old.
	j := Job{CreatedAt: time.Date(2025, 6, 1, 13, 30, 0, 0, loc)}

	if j.Expired(now, time.Hour) {
		t.Error("a 30-minute-old job must not be expired with a 1h threshold")
	}
	if !j.Expired(now, 10*time.Minute) {
		t.Error("a 30-minute-old job must be expired with a 10m threshold")
	}
}
