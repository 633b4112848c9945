// internal/browser/options_test.go
package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nelakvee/recordsync/internal/config"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []Flag
	}{
		{"boolean with dashes", []string{"--no-zygote"}, []Flag{{Name: "no-zygote", Value: true}}},
		{"boolean without dashes", []string{"mute-audio"}, []Flag{{Name: "mute-audio", Value: true}}},
		{"key value", []string{"--window-size=1280,800"}, []Flag{{Name: "window-size", Value: "1280,800"}}},
		{"value keeps equals", []string{"--js-flags=--max-old-space=512"}, []Flag{{Name: "js-flags", Value: "--max-old-space=512"}}},
		{"blank and bare dashes are skipped", []string{"", "  ", "--", "--=x"}, []Flag{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseFlags(tt.args))
		})
	}
}

func TestExecOptions(t *testing.T) {
	base := len(ExecOptions(config.BrowserConfig{}))

	t.Run("adds optional switches", func(t *testing.T) {
		opts := ExecOptions(config.BrowserConfig{
			Headless:    true,
			DisableGPU:  true,
			ExecPath:    "/usr/bin/chromium",
			UserDataDir: "/tmp/profile",
			Args:        []string{"--lang=en-US", "--no-first-run"},
		})
		assert.Len(t, opts, base+6)
	})

	t.Run("does not alias the defaults", func(t *testing.T) {
		a := ExecOptions(config.BrowserConfig{Args: []string{"a"}})
		b := ExecOptions(config.BrowserConfig{Args: []string{"b", "c"}})
		assert.Len(t, a, base+1)
		assert.Len(t, b, base+2)
	})
}
