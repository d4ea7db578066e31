package schema

import (
	"errors"
	"testing"
)

func TestNormalizeSource(t *testing.T) {
	cases := []struct {
		name  string
		value string
		want  Source
		valid bool
	}{
		{"simple", "BOJ", "BOJ", true},
		{"trimmed", "  BOJ ", "BOJ", true},
		{"with-dash", "code-forces", "code-forces", true},
		{"empty", "", "", false},
		{"space", "B OJ", "", false},
		{"slash", "BOJ/1000", "", false},
		{"unicode", "백준", "", false},
	}
	for _, tc := range cases {
		got, err := NormalizeSource(tc.value)
		if tc.valid && err != nil {
			t.Fatalf("case %q expected valid, got error: %v", tc.name, err)
		}
		if !tc.valid && err == nil {
			t.Fatalf("case %q expected error, got %q", tc.name, got)
		}
		if tc.valid && got != tc.want {
			t.Fatalf("case %q expected %q, got %q", tc.name, tc.want, got)
		}
	}
}

func TestNormalizeSubmission(t *testing.T) {
	sub, err := NormalizeSubmission(Submission{
		Source:          " BOJ ",
		SourceProblemID: " 1000",
		Code:            "print(1)",
		Language:        "python3",
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if sub.Source != "BOJ" || sub.SourceProblemID != "1000" || sub.Language != LanguagePython {
		t.Fatalf("unexpected submission: %+v", sub)
	}

	bad := []Submission{
		{SourceProblemID: "1000", Code: "x", Language: LanguagePython},
		{Source: "BOJ", Code: "x", Language: LanguagePython},
		{Source: "BOJ", SourceProblemID: "../1000", Code: "x", Language: LanguagePython},
		{Source: "BOJ", SourceProblemID: "1000", Code: "  ", Language: LanguagePython},
		{Source: "BOJ", SourceProblemID: "1000", Code: "x", Language: "Brainfuck"},
	}
	for i, in := range bad {
		if _, err := NormalizeSubmission(in); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("case %d: expected invalid request, got %v", i, err)
		}
	}
}

func TestCodeOf(t *testing.T) {
	cases := []struct {
		err  error
		want Code
	}{
		{nil, CodeSuccess},
		{ErrUnsupportedSource, CodeUnsupportedSource},
		{ErrTabClosed, CodeTabClosed},
		{ErrTimeout, CodePollTimeout},
		{ErrUnsupportedLanguage, CodeInvalidRequest},
		{&EnvelopeError{Code: CodeLoginFailed}, CodeLoginFailed},
		{errors.New("boom"), CodeUnknownError},
	}
	for _, tc := range cases {
		if got := CodeOf(tc.err); got != tc.want {
			t.Fatalf("CodeOf(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestNewEnvelopeRequiresPayload(t *testing.T) {
	if env := NewEnvelope(nil); env.Code == CodeSuccess {
		t.Fatalf("expected nil payload to fail, got %+v", env)
	}
	env := NewEnvelope(SubmitResponse{TabID: "t1"})
	if !env.OK() {
		t.Fatalf("expected success envelope, got %+v", env)
	}
}

func TestNormalizeWorkflowConfigDefaults(t *testing.T) {
	cfg, err := NormalizeWorkflowConfig(WorkflowConfig{})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg != DefaultWorkflowConfig() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
	if _, err := NormalizeWorkflowConfig(WorkflowConfig{LoginPollInterval: 10 * DefaultLoginTimeout}); err == nil {
		t.Fatalf("expected interval/timeout validation error")
	}
}
