// Package boj adapts Baekjoon Online Judge (acmicpc.net).
package boj

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"pkt.systems/judgerelay/adapter"
	"pkt.systems/judgerelay/schema"
)

// Source is the registry key of the BOJ adapter.
const Source schema.Source = "BOJ"

// DefaultBaseURL is the public BOJ site.
const DefaultBaseURL = "https://www.acmicpc.net"

const (
	loginInputSelector   = `input[name="login_user_id"]`
	languageSelector     = `#language`
	submitButtonSelector = `#submit_button`
	statusTableSelector  = `#status-table`
)

// languageValues maps languages to BOJ language option ids.
var languageValues = map[schema.Language]string{
	schema.LanguagePython: "28",
	schema.LanguageJava:   "93",
	schema.LanguageCPP:    "84",
	schema.LanguageNode:   "17",
}

// Options tunes the adapter.
type Options struct {
	// BaseURL overrides the site root, mostly for tests against a local judge.
	BaseURL string
	// LanguageSettle is the pause after switching the language select.
	LanguageSettle time.Duration
	// CodeSettle is the pause after filling the editor.
	CodeSettle time.Duration
}

// Adapter implements adapter.Adapter for BOJ.
type Adapter struct {
	base           *url.URL
	languageSettle time.Duration
	codeSettle     time.Duration
}

var _ adapter.Adapter = (*Adapter)(nil)

// New constructs a BOJ adapter.
func New(opts Options) (*Adapter, error) {
	raw := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if raw == "" {
		raw = DefaultBaseURL
	}
	base, err := url.Parse(raw)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("boj base url must include scheme and host: %q", opts.BaseURL)
	}
	if opts.LanguageSettle < 0 || opts.CodeSettle < 0 {
		return nil, fmt.Errorf("boj settle delays must not be negative")
	}
	return &Adapter{
		base:           base,
		languageSettle: opts.LanguageSettle,
		codeSettle:     opts.CodeSettle,
	}, nil
}

// Default returns the adapter for the public site with the stock settle delays.
func Default() *Adapter {
	a, _ := New(Options{LanguageSettle: 2 * time.Second, CodeSettle: 1500 * time.Millisecond})
	return a
}

// Source implements adapter.Adapter.
func (a *Adapter) Source() schema.Source { return Source }

// Matches implements adapter.Adapter.
func (a *Adapter) Matches(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, a.base.Host)
}

// SubmitURL implements adapter.Adapter.
func (a *Adapter) SubmitURL(problemID string) string {
	return a.base.String() + "/submit/" + url.PathEscape(problemID)
}

// CheckLoginStatus implements adapter.Adapter. The login form input only renders for guests.
func (a *Adapter) CheckLoginStatus(ctx context.Context, page adapter.Page) (bool, error) {
	guest, err := page.Exists(ctx, loginInputSelector)
	if err != nil {
		return false, err
	}
	return !guest, nil
}

// Submit implements adapter.Adapter.
func (a *Adapter) Submit(ctx context.Context, page adapter.Page, code string, language schema.Language) (bool, error) {
	value, ok := languageValues[language]
	if !ok {
		return false, nil
	}
	var selected bool
	if err := page.Evaluate(ctx, selectLanguageScript(value), &selected); err != nil {
		return false, err
	}
	if !selected {
		return false, nil
	}
	if err := sleep(ctx, a.languageSettle); err != nil {
		return false, err
	}
	var filled bool
	if err := page.Evaluate(ctx, fillCodeScript(code), &filled); err != nil {
		return false, err
	}
	if !filled {
		return false, nil
	}
	if err := sleep(ctx, a.codeSettle); err != nil {
		return false, err
	}
	present, err := page.Exists(ctx, submitButtonSelector)
	if err != nil || !present {
		return false, err
	}
	if err := page.Click(ctx, submitButtonSelector); err != nil {
		return false, err
	}
	return true, nil
}

// IsResultPage implements adapter.Adapter.
func (a *Adapter) IsResultPage(ctx context.Context, page adapter.Page) (bool, error) {
	location, err := page.URL(ctx)
	if err != nil {
		return false, err
	}
	u, err := url.Parse(location)
	if err != nil {
		return false, nil
	}
	return strings.HasPrefix(u.Path, "/status"), nil
}

// Progress implements adapter.Adapter.
func (a *Adapter) Progress(ctx context.Context, page adapter.Page) (*schema.ProgressReport, error) {
	var row *statusRow
	if err := page.Evaluate(ctx, statusRowScript, &row); err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	report := row.report()
	return &report, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func jsString(value string) string {
	data, _ := json.Marshal(value)
	return string(data)
}

func selectLanguageScript(value string) string {
	return fmt.Sprintf(`(() => {
	const sel = document.querySelector(%s);
	if (!sel) return false;
	sel.value = %s;
	sel.dispatchEvent(new Event('change', {bubbles: true}));
	if (window.jQuery) {
		window.jQuery(sel).trigger('chosen:updated');
	} else {
		sel.dispatchEvent(new Event('chosen:updated'));
	}
	return sel.value === %s;
})()`, jsString(languageSelector), jsString(value), jsString(value))
}

func fillCodeScript(code string) string {
	return fmt.Sprintf(`(() => {
	const code = %s;
	const src = document.getElementById('source');
	if (!src) return false;
	const cm = src.parentElement && src.parentElement.querySelector('.CodeMirror');
	if (cm && cm.CodeMirror) {
		cm.CodeMirror.setValue(code);
		return true;
	}
	src.value = code;
	src.dispatchEvent(new Event('input', {bubbles: true}));
	src.dispatchEvent(new Event('change', {bubbles: true}));
	if (cm) {
		const area = cm.querySelector('textarea');
		if (area) {
			area.value = code;
			area.dispatchEvent(new Event('input'));
			area.dispatchEvent(new Event('change'));
		}
	}
	return true;
})()`, jsString(code))
}

var statusRowScript = fmt.Sprintf(`(() => {
	const row = document.querySelector(%s + ' tbody tr');
	if (!row) return null;
	const result = row.querySelector('.result-text') || row.querySelector('td.result');
	if (!result) return null;
	const text = (sel) => {
		const el = row.querySelector(sel);
		return el ? el.textContent.trim() : '';
	};
	return {
		label: result.textContent.trim(),
		className: result.className || '',
		memory: text('td.memory'),
		time: text('td.time'),
	};
})()`, jsString(statusTableSelector))
