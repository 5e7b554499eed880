package worker

import (
	"context"
	"errors"
	"strings"
	"testing"

	"contract-analyzer/internal/analysis"
	"contract-analyzer/internal/models"
)

func okFactory() AnalyzerFactory {
	return func() (Analyzer, error) { return okAnalyzer(), nil }
}

func TestRunOnceProcessesJobsInIsolation(t *testing.T) {
	dir := t.TempDir()
	jobs := []models.Job{
		testJob("j1", dir, t),
		testJob("j2", dir, t),
		testJob("j3", dir, t),
	}
	st := newFakeStore(jobs...)
	deps := testDeps(st, dir, &fakeMailer{}, &fakeAlerter{})

	// j2's contract trips the analyzer; its siblings must still finish.
	factory := func() (Analyzer, error) {
		return &fakeAnalyzer{fn: func(_ context.Context, text string) (analysis.Output, error) {
			if strings.Contains(text, "j2") {
				return analysis.Output{}, errors.New("model overloaded")
			}
			return analysis.Output{Report: map[string]any{"ok": true}, ContractContent: text}, nil
		}}, nil
	}

	s := NewScheduler(deps, factory, 2)
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	if got := st.lastJobStatus("j1"); got != models.StatusCompleted {
		t.Fatalf("j1: expected completed, got %q", got)
	}
	if got := st.lastJobStatus("j2"); got != models.StatusFailed {
		t.Fatalf("j2: expected failed, got %q", got)
	}
	if got := st.lastJobStatus("j3"); got != models.StatusCompleted {
		t.Fatalf("j3: expected completed, got %q", got)
	}
	if len(st.claimCalls) != 3 {
		t.Fatalf("expected every job claimed once, got %v", st.claimCalls)
	}
}

func TestRunOnceSkipsJobsClaimedElsewhere(t *testing.T) {
	dir := t.TempDir()
	jobs := []models.Job{testJob("j1", dir, t), testJob("j2", dir, t)}
	st := newFakeStore(jobs...)
	st.claimDenied["j1"] = true

	s := NewScheduler(testDeps(st, dir, &fakeMailer{}, &fakeAlerter{}), okFactory(), 2)
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	if len(st.jobUpdates["j1"]) != 0 {
		t.Fatalf("unclaimed job must not be touched, got %v", st.jobUpdates["j1"])
	}
	if got := st.lastJobStatus("j2"); got != models.StatusCompleted {
		t.Fatalf("j2: expected completed, got %q", got)
	}
}

func TestRunOnceWithNoJobsIsANoop(t *testing.T) {
	st := newFakeStore()
	s := NewScheduler(testDeps(st, t.TempDir(), &fakeMailer{}, &fakeAlerter{}), okFactory(), 4)
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("expected nil for an empty pass, got %v", err)
	}
	if len(st.claimCalls) != 0 {
		t.Fatalf("nothing should be claimed on an empty pass")
	}
}

func TestRunOnceSurfacesFetchError(t *testing.T) {
	st := newFakeStore()
	st.fetchErr = errors.New("connection refused")

	s := NewScheduler(testDeps(st, t.TempDir(), &fakeMailer{}, &fakeAlerter{}), okFactory(), 4)
	if err := s.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected fetch error to propagate")
	}
}

func TestRunOnceAnalyzerFactoryErrorFailsOnlyThatJob(t *testing.T) {
	dir := t.TempDir()
	st := newFakeStore(testJob("j1", dir, t))
	alerts := &fakeAlerter{}
	factory := func() (Analyzer, error) { return nil, errors.New("missing API key") }

	s := NewScheduler(testDeps(st, dir, &fakeMailer{}, alerts), factory, 1)
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if got := st.lastJobStatus("j1"); got != models.StatusFailed {
		t.Fatalf("expected failed, got %q", got)
	}
	if alerts.count() != 1 {
		t.Fatalf("expected one alert, got %d", alerts.count())
	}
}

func TestIdentityRegistryIsStablePerSlot(t *testing.T) {
	reg := newIdentityRegistry()
	first := reg.For(0)
	second := reg.For(1)

	if !strings.HasPrefix(first, "W-") || len(first) != 8 {
		t.Fatalf("unexpected identity format: %q", first)
	}
	if first == second {
		t.Fatalf("slots must not share identities")
	}
	if reg.For(0) != first {
		t.Fatalf("slot identity must be stable across passes")
	}
}
