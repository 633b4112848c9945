// internal/browser/options.go
package browser

import (
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/nelakvee/recordsync/internal/config"
)

// ExecOptions translates the browser config into chromedp allocator options.
func ExecOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		// Required on hardened hosts and inside containers.
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
	)

	// DefaultExecAllocatorOptions starts headless. A visible window is needed
	// whenever an operator has to answer the MFA prompt.
	opts = append(opts, chromedp.Flag("headless", cfg.Headless))
	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if cfg.DisableGPU {
		opts = append(opts, chromedp.DisableGPU)
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}

	for _, f := range ParseFlags(cfg.Args) {
		opts = append(opts, chromedp.Flag(f.Name, f.Value))
	}
	return opts
}

// Flag is a single command line switch for the browser process.
type Flag struct {
	Name  string
	Value any
}

// ParseFlags converts "--name" and "--name=value" strings into flags.
// chromedp adds the leading dashes itself, so they are stripped here.
func ParseFlags(args []string) []Flag {
	flags := make([]Flag, 0, len(args))
	for _, arg := range args {
		arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
		if arg == "" {
			continue
		}
		name, value, ok := strings.Cut(arg, "=")
		if !ok {
			flags = append(flags, Flag{Name: name, Value: true})
			continue
		}
		if name == "" {
			continue
		}
		flags = append(flags, Flag{Name: name, Value: value})
	}
	return flags
}
