package boj

import (
	"regexp"
	"strconv"
	"strings"

	"pkt.systems/judgerelay/schema"
)

// statusRow is the first row of the status table as extracted by statusRowScript.
type statusRow struct {
	Label     string `json:"label"`
	ClassName string `json:"className"`
	Memory    string `json:"memory"`
	Time      string `json:"time"`
}

type verdict struct {
	complete bool
	outcome  schema.Outcome
}

var pending = verdict{}

// classVerdicts maps BOJ result-* classes to verdicts.
var classVerdicts = map[string]verdict{
	"result-wait":    pending,
	"result-rejudge": pending,
	"result-compile": pending,
	"result-judging": pending,
	"result-ac":      {complete: true, outcome: schema.OutcomeSuccess},
	"result-pac":     {complete: true, outcome: schema.OutcomeFail},
	"result-pe":      {complete: true, outcome: schema.OutcomeFail},
	"result-wa":      {complete: true, outcome: schema.OutcomeFail},
	"result-awa":     {complete: true, outcome: schema.OutcomeFail},
	"result-tle":     {complete: true, outcome: schema.OutcomeFail},
	"result-mle":     {complete: true, outcome: schema.OutcomeFail},
	"result-ole":     {complete: true, outcome: schema.OutcomeFail},
	"result-rte":     {complete: true, outcome: schema.OutcomeFail},
	"result-ce":      {complete: true, outcome: schema.OutcomeFail},
	"result-co":      {complete: true, outcome: schema.OutcomeError},
	"result-del":     {complete: true, outcome: schema.OutcomeError},
}

var percentPattern = regexp.MustCompile(`(\d{1,3})\s*%`)

func (r statusRow) report() schema.ProgressReport {
	label := strings.Join(strings.Fields(r.Label), " ")
	v := classify(r.ClassName, label)
	report := schema.ProgressReport{
		StatusLabel: label,
		IsComplete:  v.complete,
		Outcome:     v.outcome,
	}
	if !v.complete {
		if m := percentPattern.FindStringSubmatch(label); m != nil {
			report.PercentComplete, _ = strconv.Atoi(m[1])
		}
	}
	if v.complete {
		if mem := strings.TrimSpace(r.Memory); mem != "" {
			report.MemoryUsed = mem + " KB"
		}
		if t := strings.TrimSpace(r.Time); t != "" {
			report.TimeUsed = t + " ms"
		}
	}
	return report.ClampPercent()
}

func classify(className, label string) verdict {
	for _, class := range strings.Fields(className) {
		if v, ok := classVerdicts[class]; ok {
			return v
		}
	}
	lower := strings.ToLower(label)
	switch {
	case label == "":
		return pending
	case strings.Contains(label, "맞았습니다"), strings.Contains(lower, "accepted"):
		return verdict{complete: true, outcome: schema.OutcomeSuccess}
	case strings.Contains(label, "기다리는 중"), strings.Contains(label, "채점 준비"),
		strings.Contains(label, "채점 중"), strings.Contains(label, "재채점"),
		strings.Contains(label, "컴파일 중"),
		strings.Contains(lower, "pending"), strings.Contains(lower, "judging"),
		strings.Contains(lower, "compiling"):
		return pending
	case strings.Contains(label, "채점 불가"), strings.Contains(lower, "judge error"):
		return verdict{complete: true, outcome: schema.OutcomeError}
	default:
		return verdict{complete: true, outcome: schema.OutcomeFail}
	}
}
