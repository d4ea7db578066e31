// Package logx adds relay identifiers (tab, session, submission) to pslog
// loggers. Contexts carry the scope a logger was built for so the same field
// is never attached twice on the way down from the coordinator to an agent.
package logx

import (
	"context"

	"pkt.systems/judgerelay/schema"
	"pkt.systems/pslog"
)

type scopeKey struct{}

// scope records which identifiers the context logger already carries.
type scope struct {
	tab     schema.TabID
	session schema.SessionID
}

func scopeOf(ctx context.Context) scope {
	if ctx == nil {
		return scope{}
	}
	s, _ := ctx.Value(scopeKey{}).(scope)
	return s
}

// WithTab returns the context logger with a "tab" field, unless that tab is
// already in scope.
func WithTab(ctx context.Context, tabID schema.TabID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if tabID == "" || scopeOf(ctx).tab == tabID {
		return log
	}
	return log.With("tab", tabID)
}

// WithSession adds the "session" field.
func WithSession(log pslog.Logger, sessionID schema.SessionID) pslog.Logger {
	if sessionID == "" {
		return log
	}
	return log.With("session", sessionID)
}

// WithSubmission adds source, problem and language, skipping empty ones.
func WithSubmission(log pslog.Logger, sub schema.Submission) pslog.Logger {
	var kv []any
	if sub.Source != "" {
		kv = append(kv, "source", sub.Source)
	}
	if sub.SourceProblemID != "" {
		kv = append(kv, "problem", sub.SourceProblemID)
	}
	if sub.Language != "" {
		kv = append(kv, "language", sub.Language)
	}
	if len(kv) == 0 {
		return log
	}
	return log.With(kv...)
}

// ContextWithTabLogger binds an agent logger that already carries tabID.
func ContextWithTabLogger(ctx context.Context, log pslog.Logger, tabID schema.TabID) context.Context {
	s := scopeOf(ctx)
	s.tab = tabID
	return context.WithValue(pslog.ContextWithLogger(ctx, log), scopeKey{}, s)
}

// ContextWithSessionLogger binds a workflow logger that already carries the
// session and its target tab.
func ContextWithSessionLogger(ctx context.Context, log pslog.Logger, sessionID schema.SessionID, tabID schema.TabID) context.Context {
	s := scope{tab: tabID, session: sessionID}
	return context.WithValue(pslog.ContextWithLogger(ctx, log), scopeKey{}, s)
}
