package policy

import (
	"testing"
	"time"
)

func TestResolve_PaidTierRaisesThroughput(t *testing.T) {
	free := Resolve(Request{Profile: ProfileAPI, PaidTier: false})
	paid := Resolve(Request{Profile: ProfileAPI, PaidTier: true})

	if free.BatchSize >= paid.BatchSize {
		t.Errorf("free batch size %d should be smaller than paid %d", free.BatchSize, paid.BatchSize)
	}
	if free.LLMDelay <= paid.LLMDelay {
		t.Errorf("free delay %v should be larger than paid %v", free.LLMDelay, paid.LLMDelay)
	}
	if free.MaxExecution != paid.MaxExecution {
		t.Errorf("budget should not depend on tier: %v vs %v", free.MaxExecution, paid.MaxExecution)
	}
}

func TestResolve_ProfileLockUsage(t *testing.T) {
	tests := []struct {
		profile Profile
		useLock bool
	}{
		{ProfileAPI, true},
		{ProfileManual, true},
		{ProfileRefresh, false},
		{ProfileScheduled, true},
	}

	for _, tt := range tests {
		p := Resolve(Request{Profile: tt.profile})
		if p.UseLock != tt.useLock {
			t.Errorf("profile %s: UseLock = %t, want %t", tt.profile, p.UseLock, tt.useLock)
		}
	}
}

func TestResolve_OverridesClamped(t *testing.T) {
	p := Resolve(Request{
		Profile: ProfileManual,
		Overrides: Overrides{
			BatchSize:         5000,
			LLMDelayMs:        60000,
			SourceConcurrency: 100,
		},
	})

	if p.BatchSize != 200 {
		t.Errorf("batch size should clamp to 200, got %d", p.BatchSize)
	}
	if p.LLMDelay != 10*time.Second {
		t.Errorf("delay should clamp to 10s, got %v", p.LLMDelay)
	}
	if p.SourceConcurrency != 16 {
		t.Errorf("concurrency should clamp to 16, got %d", p.SourceConcurrency)
	}

	p = Resolve(Request{Profile: ProfileManual, Overrides: Overrides{BatchSize: -3}})
	if p.BatchSize != 1 {
		t.Errorf("negative batch size should clamp to 1, got %d", p.BatchSize)
	}
}

func TestResolve_OverridesApplied(t *testing.T) {
	p := Resolve(Request{
		Profile:   ProfileScheduled,
		Overrides: Overrides{BatchSize: 12, LLMDelayMs: 1500, MaxExecutionMs: 120000},
	})

	if p.BatchSize != 12 {
		t.Errorf("BatchSize = %d, want 12", p.BatchSize)
	}
	if p.LLMDelay != 1500*time.Millisecond {
		t.Errorf("LLMDelay = %v, want 1.5s", p.LLMDelay)
	}
	if p.MaxExecution != 2*time.Minute {
		t.Errorf("MaxExecution = %v, want 2m", p.MaxExecution)
	}
}

func TestResolve_UnknownProfileFallsBackToManual(t *testing.T) {
	got := Resolve(Request{Profile: Profile("bogus")})
	want := Resolve(Request{Profile: ProfileManual})
	if got != want {
		t.Errorf("unknown profile should resolve as manual: got %+v, want %+v", got, want)
	}
}

func TestResolve_Deterministic(t *testing.T) {
	req := Request{Profile: ProfileAPI, PaidTier: true, Overrides: Overrides{BatchSize: 7}}
	if Resolve(req) != Resolve(req) {
		t.Error("Resolve should be deterministic for identical requests")
	}
}
