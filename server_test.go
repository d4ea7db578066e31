package judgerelay

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"pkt.systems/judgerelay/adapter"
	"pkt.systems/judgerelay/httpapi"
	"pkt.systems/judgerelay/internal/browser/memory"
	"pkt.systems/judgerelay/internal/initiator"
	"pkt.systems/judgerelay/schema"
)

const judgeRoot = "https://judge.test"

// stubJudge accepts every submission and grades it on the second progress poll.
type stubJudge struct {
	mu    sync.Mutex
	polls int
}

func (j *stubJudge) Source() schema.Source { return "STUB" }

func (j *stubJudge) Matches(url string) bool { return strings.HasPrefix(url, judgeRoot+"/") }

func (j *stubJudge) SubmitURL(problemID string) string { return judgeRoot + "/submit/" + problemID }

func (j *stubJudge) CheckLoginStatus(context.Context, adapter.Page) (bool, error) { return true, nil }

func (j *stubJudge) Submit(ctx context.Context, page adapter.Page, _ string, _ schema.Language) (bool, error) {
	if err := page.Click(ctx, "#submit"); err != nil {
		return false, err
	}
	return true, nil
}

func (j *stubJudge) IsResultPage(ctx context.Context, page adapter.Page) (bool, error) {
	url, err := page.URL(ctx)
	return strings.Contains(url, "/status"), err
}

func (j *stubJudge) Progress(context.Context, adapter.Page) (*schema.ProgressReport, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.polls++
	if j.polls < 2 {
		return &schema.ProgressReport{StatusLabel: "judging", PercentComplete: 50}, nil
	}
	return &schema.ProgressReport{StatusLabel: "accepted", IsComplete: true, Outcome: schema.OutcomeSuccess}, nil
}

type sinkRecorder struct {
	mu     sync.Mutex
	phases []schema.Phase
}

func (r *sinkRecorder) OnSessionEvent(event schema.SessionSnapshot) {
	r.mu.Lock()
	r.phases = append(r.phases, event.Phase)
	r.mu.Unlock()
}

func (r *sinkRecorder) sawPhase(phase schema.Phase) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.phases {
		if p == phase {
			return true
		}
	}
	return false
}

func fastWorkflow() schema.WorkflowConfig {
	return schema.WorkflowConfig{
		RequestTimeout:      time.Second,
		LoadTimeout:         time.Second,
		LoginPollInterval:   10 * time.Millisecond,
		LoginTimeout:        time.Second,
		SubmitTimeout:       time.Second,
		SubmitAckTimeout:    time.Second,
		AckPollInterval:     10 * time.Millisecond,
		GradingPollInterval: 10 * time.Millisecond,
		GradingTimeout:      2 * time.Second,
	}
}

func TestServerRunsSubmissionEndToEnd(t *testing.T) {
	b := memory.New(memory.Options{
		LoadDelay: 5 * time.Millisecond,
		Site: memory.Site{
			Click: func(_ schema.TabID, url, selector string) string {
				if selector == "#submit" {
					return judgeRoot + "/status?user=me"
				}
				return ""
			},
		},
	})
	b.AddTab("https://example.com/", true)
	sink := &sinkRecorder{}
	srv, err := New(ServerConfig{
		HTTP:     httpapi.Config{Addr: "127.0.0.1:0", BasePath: "/relay"},
		Workflow: fastWorkflow(),
	}, ServerDeps{
		Browser:  b,
		Adapters: adapter.NewRegistry(&stubJudge{}),
		Sink:     sink,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		if err := srv.Stop(stopCtx); err != nil {
			t.Fatalf("stop: %v", err)
		}
		if err := srv.Wait(); err != nil {
			t.Fatalf("wait: %v", err)
		}
	}()

	client, err := initiator.New("http://"+srv.Addr().String()+"/relay", nil)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	sources, err := client.Sources(ctx)
	if err != nil || len(sources) != 1 || sources[0] != "STUB" {
		t.Fatalf("unexpected sources %v: %v", sources, err)
	}

	result, err := client.Run(ctx, schema.Submission{
		Source:          "STUB",
		SourceProblemID: "1000",
		Code:            "print(1)",
		Language:        schema.LanguagePython,
	}, initiator.RunOptions{Interval: 10 * time.Millisecond, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !result.Report.IsComplete || result.Report.Outcome != schema.OutcomeSuccess {
		t.Fatalf("unexpected report: %+v", result.Report)
	}
	if !sink.sawPhase(schema.PhasePollingGrading) {
		t.Fatalf("expected the sink to observe grading")
	}
	active, err := b.ActiveTab(ctx)
	if err != nil || active.URL != "https://example.com/" {
		t.Fatalf("expected origin tab to keep focus, got %+v %v", active, err)
	}
}

func TestServerRequiresDependencies(t *testing.T) {
	if _, err := New(ServerConfig{}, ServerDeps{}); err == nil {
		t.Fatalf("expected missing browser error")
	}
	b := memory.New(memory.Options{})
	if _, err := New(ServerConfig{}, ServerDeps{Browser: b, Adapters: adapter.NewRegistry()}); err == nil {
		t.Fatalf("expected missing adapter error")
	}
}

func TestServerStopBeforeStart(t *testing.T) {
	b := memory.New(memory.Options{})
	srv, err := New(ServerConfig{HTTP: httpapi.Config{Addr: "127.0.0.1:0"}}, ServerDeps{Browser: b, Adapters: adapter.NewRegistry(&stubJudge{})})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	if err := srv.Stop(context.Background()); err != nil {
		t.Fatalf("stop before start: %v", err)
	}
	if err := srv.Wait(); err == nil {
		t.Fatalf("expected wait before start to fail")
	}
}

func TestServerRejectsSecondStart(t *testing.T) {
	b := memory.New(memory.Options{})
	srv, err := New(ServerConfig{HTTP: httpapi.Config{Addr: "127.0.0.1:0"}}, ServerDeps{Browser: b, Adapters: adapter.NewRegistry(&stubJudge{})})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := srv.Start(ctx); err == nil {
		t.Fatalf("expected second start to fail")
	}
	cancel()
	if err := srv.Wait(); err != nil {
		t.Fatalf("wait after cancel: %v", err)
	}
}
