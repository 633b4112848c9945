package browser

import (
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/nelakvee/recordsync/internal/config"
)

// Persona is the browser identity presented to both portals. Empty fields
// leave Chrome's own value in place.
type Persona struct {
	UserAgent string
	Locale    string
	Timezone  string
	Languages []string
}

// PersonaFromConfig reads the emulation overrides from cfg.
func PersonaFromConfig(cfg config.BrowserConfig) Persona {
	return Persona{
		UserAgent: cfg.UserAgent,
		Locale:    cfg.Locale,
		Timezone:  cfg.Timezone,
		Languages: cfg.Languages,
	}
}

// IsZero reports whether the persona overrides nothing.
func (p Persona) IsZero() bool {
	return p.UserAgent == "" && p.Locale == "" && p.Timezone == "" && len(p.Languages) == 0
}

// acceptLanguage renders Languages as an Accept-Language header with
// descending quality values.
func (p Persona) acceptLanguage() string {
	parts := make([]string, 0, len(p.Languages))
	q := 10
	for _, lang := range p.Languages {
		lang = strings.TrimSpace(lang)
		if lang == "" {
			continue
		}
		if len(parts) == 0 {
			parts = append(parts, lang)
		} else {
			parts = append(parts, fmt.Sprintf("%s;q=0.%d", lang, q))
		}
		if q > 1 {
			q--
		}
	}
	return strings.Join(parts, ",")
}

// Tasks returns the CDP actions that apply p to a tab. Overrides are per
// target, so every attached tab gets them.
func (p Persona) Tasks() chromedp.Tasks {
	var tasks chromedp.Tasks
	if p.UserAgent != "" {
		ua := emulation.SetUserAgentOverride(p.UserAgent)
		if header := p.acceptLanguage(); header != "" {
			ua = ua.WithAcceptLanguage(header)
		}
		tasks = append(tasks, ua)
	}
	if p.Timezone != "" {
		tasks = append(tasks, emulation.SetTimezoneOverride(p.Timezone))
	}
	if p.Locale != "" {
		tasks = append(tasks, emulation.SetLocaleOverride().WithLocale(p.Locale))
	}
	if header := p.acceptLanguage(); header != "" {
		tasks = append(tasks, network.Enable(), network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": header}))
	}
	return tasks
}
