package boj

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"pkt.systems/judgerelay/schema"
)

type fakePage struct {
	url      string
	elements map[string]bool
	evals    map[string]any
	clicked  []string
	scripts  []string
}

func (p *fakePage) URL(context.Context) (string, error) { return p.url, nil }

func (p *fakePage) Exists(_ context.Context, selector string) (bool, error) {
	return p.elements[selector], nil
}

func (p *fakePage) Click(_ context.Context, selector string) error {
	p.clicked = append(p.clicked, selector)
	return nil
}

// Evaluate answers with the first canned value whose key occurs in the expression.
func (p *fakePage) Evaluate(_ context.Context, expression string, out any) error {
	p.scripts = append(p.scripts, expression)
	for key, value := range p.evals {
		if strings.Contains(expression, key) {
			data, err := json.Marshal(value)
			if err != nil {
				return err
			}
			return json.Unmarshal(data, out)
		}
	}
	return json.Unmarshal([]byte("null"), out)
}

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	a, err := New(Options{})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return a
}

func TestSubmitURL(t *testing.T) {
	a := newTestAdapter(t)
	got := a.SubmitURL("1000")
	if got != "https://www.acmicpc.net/submit/1000" {
		t.Fatalf("unexpected submit url %q", got)
	}
	if got != a.SubmitURL("1000") {
		t.Fatalf("submit url not deterministic")
	}
	local, err := New(Options{BaseURL: "http://127.0.0.1:8080/"})
	if err != nil {
		t.Fatalf("new local adapter: %v", err)
	}
	if got := local.SubmitURL("42"); got != "http://127.0.0.1:8080/submit/42" {
		t.Fatalf("unexpected local submit url %q", got)
	}
	if _, err := New(Options{BaseURL: "acmicpc.net"}); err == nil {
		t.Fatalf("expected base url validation error")
	}
}

func TestMatches(t *testing.T) {
	a := newTestAdapter(t)
	if !a.Matches("https://www.acmicpc.net/status?user_id=x") {
		t.Fatalf("expected status page to match")
	}
	if a.Matches("https://codeforces.com/problemset/submit") {
		t.Fatalf("did not expect other judge to match")
	}
}

func TestCheckLoginStatus(t *testing.T) {
	a := newTestAdapter(t)
	guest := &fakePage{elements: map[string]bool{loginInputSelector: true}}
	if ok, err := a.CheckLoginStatus(context.Background(), guest); err != nil || ok {
		t.Fatalf("expected guest page to be logged out, got %v %v", ok, err)
	}
	member := &fakePage{elements: map[string]bool{}}
	if ok, err := a.CheckLoginStatus(context.Background(), member); err != nil || !ok {
		t.Fatalf("expected member page to be logged in, got %v %v", ok, err)
	}
}

func TestSubmitFillsAndClicks(t *testing.T) {
	a := newTestAdapter(t)
	page := &fakePage{
		elements: map[string]bool{submitButtonSelector: true},
		evals: map[string]any{
			"#language":   true,
			"CodeMirror":  true,
			"not-matched": false,
		},
	}
	ok, err := a.Submit(context.Background(), page, "print(1)", schema.LanguagePython)
	if err != nil || !ok {
		t.Fatalf("expected submit success, got %v %v", ok, err)
	}
	if len(page.clicked) != 1 || page.clicked[0] != submitButtonSelector {
		t.Fatalf("expected submit button click, got %v", page.clicked)
	}
	if len(page.scripts) < 2 || !strings.Contains(page.scripts[0], `"28"`) {
		t.Fatalf("expected python option id in language script, got %v", page.scripts)
	}
	if !strings.Contains(page.scripts[1], `"print(1)"`) {
		t.Fatalf("expected code literal in fill script, got %q", page.scripts[1])
	}
}

func TestSubmitReportsMissingElements(t *testing.T) {
	a := newTestAdapter(t)
	noSelect := &fakePage{elements: map[string]bool{submitButtonSelector: true}}
	if ok, err := a.Submit(context.Background(), noSelect, "x", schema.LanguageJava); err != nil || ok {
		t.Fatalf("expected false without language select, got %v %v", ok, err)
	}
	noButton := &fakePage{evals: map[string]any{"#language": true, "CodeMirror": true}}
	if ok, err := a.Submit(context.Background(), noButton, "x", schema.LanguageJava); err != nil || ok {
		t.Fatalf("expected false without submit button, got %v %v", ok, err)
	}
	if len(noButton.clicked) != 0 {
		t.Fatalf("did not expect a click")
	}
	if ok, err := a.Submit(context.Background(), noButton, "x", schema.Language("COBOL")); err != nil || ok {
		t.Fatalf("expected false for unknown language, got %v %v", ok, err)
	}
}

func TestSubmitHonorsContext(t *testing.T) {
	a, err := New(Options{LanguageSettle: 1 << 40})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	page := &fakePage{evals: map[string]any{"#language": true}}
	if _, err := a.Submit(ctx, page, "x", schema.LanguageCPP); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestIsResultPage(t *testing.T) {
	a := newTestAdapter(t)
	cases := map[string]bool{
		"https://www.acmicpc.net/status?from_mine=1&problem_id=1000": true,
		"https://www.acmicpc.net/submit/1000":                        false,
		"https://www.acmicpc.net/problem/1000?ref=status":            false,
	}
	for location, want := range cases {
		got, err := a.IsResultPage(context.Background(), &fakePage{url: location})
		if err != nil || got != want {
			t.Fatalf("IsResultPage(%q) = %v %v, want %v", location, got, err, want)
		}
	}
}

func TestProgressNotReady(t *testing.T) {
	a := newTestAdapter(t)
	report, err := a.Progress(context.Background(), &fakePage{})
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if report != nil {
		t.Fatalf("expected nil report without status table, got %+v", report)
	}
}

func TestProgressParsesRow(t *testing.T) {
	a := newTestAdapter(t)
	page := &fakePage{evals: map[string]any{
		"status-table": statusRow{Label: "채점 중 (45%)", ClassName: "result-text result-judging"},
	}}
	report, err := a.Progress(context.Background(), page)
	if err != nil || report == nil {
		t.Fatalf("progress: %v %v", report, err)
	}
	if report.IsComplete || report.PercentComplete != 45 {
		t.Fatalf("unexpected judging report: %+v", report)
	}

	page.evals["status-table"] = statusRow{Label: "맞았습니다!!", ClassName: "result-text result-ac", Memory: "31120", Time: "44"}
	report, err = a.Progress(context.Background(), page)
	if err != nil || report == nil {
		t.Fatalf("progress: %v %v", report, err)
	}
	if !report.IsComplete || report.Outcome != schema.OutcomeSuccess || report.PercentComplete != 100 {
		t.Fatalf("unexpected accepted report: %+v", report)
	}
	if report.MemoryUsed != "31120 KB" || report.TimeUsed != "44 ms" {
		t.Fatalf("unexpected resource usage: %+v", report)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		class    string
		label    string
		complete bool
		outcome  schema.Outcome
	}{
		{"result-text result-wait", "기다리는 중", false, ""},
		{"result-text result-compile", "채점 준비 중", false, ""},
		{"result-text result-wa", "틀렸습니다", true, schema.OutcomeFail},
		{"result-text result-tle", "시간 초과", true, schema.OutcomeFail},
		{"", "Accepted", true, schema.OutcomeSuccess},
		{"", "Judging (10%)", false, ""},
		{"", "채점 불가", true, schema.OutcomeError},
		{"", "컴파일 중", false, ""},
		{"", "채점 준비 중", false, ""},
		{"", "컴파일 에러", true, schema.OutcomeFail},
		{"", "Runtime Error (NZEC)", true, schema.OutcomeFail},
		{"", "", false, ""},
	}
	for _, tc := range cases {
		got := classify(tc.class, tc.label)
		if got.complete != tc.complete || got.outcome != tc.outcome {
			t.Fatalf("classify(%q, %q) = %+v", tc.class, tc.label, got)
		}
	}
}
