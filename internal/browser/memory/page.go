package memory

import (
	"context"
	"encoding/json"

	"pkt.systems/judgerelay/schema"
)

type page struct {
	browser *Browser
	tabID   schema.TabID
}

func (p *page) URL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.browser.currentURL(p.tabID)
}

func (p *page) Exists(ctx context.Context, selector string) (bool, error) {
	url, err := p.URL(ctx)
	if err != nil {
		return false, err
	}
	if p.browser.opts.Site.Exists == nil {
		return false, nil
	}
	return p.browser.opts.Site.Exists(url, selector), nil
}

func (p *page) Click(ctx context.Context, selector string) error {
	url, err := p.URL(ctx)
	if err != nil {
		return err
	}
	if p.browser.opts.Site.Click == nil {
		return nil
	}
	if target := p.browser.opts.Site.Click(p.tabID, url, selector); target != "" {
		return p.browser.Navigate(p.tabID, target)
	}
	return nil
}

// Evaluate round-trips the scripted value through JSON like a real page would.
func (p *page) Evaluate(ctx context.Context, expression string, out any) error {
	url, err := p.URL(ctx)
	if err != nil {
		return err
	}
	var value any
	if p.browser.opts.Site.Evaluate != nil {
		value, err = p.browser.opts.Site.Evaluate(url, expression)
		if err != nil {
			return err
		}
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
