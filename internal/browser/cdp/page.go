package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

const defaultEvalTimeout = 5 * time.Second

type cdpPage struct {
	ctx context.Context
}

// run executes actions on the tab, bounded by the caller's context.
func (p *cdpPage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

func (p *cdpPage) URL(ctx context.Context) (string, error) {
	var url string
	if err := p.run(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

func (p *cdpPage) Exists(ctx context.Context, selector string) (bool, error) {
	quoted, err := json.Marshal(selector)
	if err != nil {
		return false, err
	}
	var found bool
	err = p.Evaluate(ctx, fmt.Sprintf(`document.querySelector(%s) !== null`, quoted), &found)
	return found, err
}

func (p *cdpPage) Click(ctx context.Context, selector string) error {
	quoted, err := json.Marshal(selector)
	if err != nil {
		return err
	}
	var clicked bool
	script := fmt.Sprintf(`(() => { const el = document.querySelector(%s); if (!el) return false; el.click(); return true; })()`, quoted)
	if err := p.Evaluate(ctx, script, &clicked); err != nil {
		return err
	}
	if !clicked {
		return fmt.Errorf("click %s: no matching element", selector)
	}
	return nil
}

func (p *cdpPage) Evaluate(ctx context.Context, expression string, out any) error {
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return evaluateJSON(ctx, expression, out)
	}))
}

// evaluateJSON stringifies the expression's value in the page so any JSON value
// decodes into out, including null.
func evaluateJSON(ctx context.Context, expression string, out any) error {
	var raw string
	wrapped := fmt.Sprintf(`JSON.stringify((%s) ?? null)`, expression)
	if err := chromedp.Evaluate(wrapped, &raw).Do(ctx); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal([]byte(raw), out)
}
