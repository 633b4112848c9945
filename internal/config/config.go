// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/nelakvee/recordsync/internal/automation"
)

// Interface defines the contract for accessing application configuration.
// The configuration is built once at startup and never mutated afterwards.
type Interface interface {
	Logger() LoggerConfig
	Database() DatabaseConfig
	Browser() BrowserConfig
	Timeouts() TimeoutsConfig
	Retry() RetryConfig
	Source() SourceConfig
	Target() TargetConfig
	Transfer() TransferConfig
	Batch() BatchConfig
	Input() InputConfig
	Diagnostics() DiagnosticsConfig
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	DatabaseCfg    DatabaseConfig    `mapstructure:"database" yaml:"database"`
	BrowserCfg     BrowserConfig     `mapstructure:"browser" yaml:"browser"`
	TimeoutsCfg    TimeoutsConfig    `mapstructure:"timeouts" yaml:"timeouts"`
	RetryCfg       RetryConfig       `mapstructure:"retry" yaml:"retry"`
	SourceCfg      SourceConfig      `mapstructure:"source" yaml:"source"`
	TargetCfg      TargetConfig      `mapstructure:"target" yaml:"target"`
	TransferCfg    TransferConfig    `mapstructure:"transfer" yaml:"transfer"`
	BatchCfg       BatchConfig       `mapstructure:"batch" yaml:"batch"`
	InputCfg       InputConfig       `mapstructure:"input" yaml:"input"`
	DiagnosticsCfg DiagnosticsConfig `mapstructure:"diagnostics" yaml:"diagnostics"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig           { return c.LoggerCfg }
func (c *Config) Database() DatabaseConfig       { return c.DatabaseCfg }
func (c *Config) Browser() BrowserConfig         { return c.BrowserCfg }
func (c *Config) Timeouts() TimeoutsConfig       { return c.TimeoutsCfg }
func (c *Config) Retry() RetryConfig             { return c.RetryCfg }
func (c *Config) Source() SourceConfig           { return c.SourceCfg }
func (c *Config) Target() TargetConfig           { return c.TargetCfg }
func (c *Config) Transfer() TransferConfig       { return c.TransferCfg }
func (c *Config) Batch() BatchConfig             { return c.BatchCfg }
func (c *Config) Input() InputConfig             { return c.InputCfg }
func (c *Config) Diagnostics() DiagnosticsConfig { return c.DiagnosticsCfg }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// DatabaseConfig holds the optional results store connection.
type DatabaseConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	URL     string `mapstructure:"url" yaml:"url"`
}

// BrowserConfig holds settings for the Chrome instance driving both systems.
type BrowserConfig struct {
	Headless    bool     `mapstructure:"headless" yaml:"headless"`
	DisableGPU  bool     `mapstructure:"disable_gpu" yaml:"disable_gpu"`
	ExecPath    string   `mapstructure:"exec_path" yaml:"exec_path"`
	UserDataDir string   `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	Args        []string `mapstructure:"args" yaml:"args"`
	// PollInterval is how often element waits re-check the page.
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	// Emulation overrides applied to every tab. Empty values keep Chrome's own.
	UserAgent string   `mapstructure:"user_agent" yaml:"user_agent"`
	Locale    string   `mapstructure:"locale" yaml:"locale"`
	Timezone  string   `mapstructure:"timezone" yaml:"timezone"`
	Languages []string `mapstructure:"languages" yaml:"languages"`
}

// TimeoutsConfig holds the two wait classes. Short covers simple field
// interactions; Long covers page loads, searches and new windows.
type TimeoutsConfig struct {
	Short time.Duration `mapstructure:"short" yaml:"short"`
	Long  time.Duration `mapstructure:"long" yaml:"long"`
}

// RetryConfig configures the stale-reference retry layer.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	Delay       time.Duration `mapstructure:"delay" yaml:"delay"`
}

// SourceConfig describes the bill portal reached through the SSO launcher.
type SourceConfig struct {
	EntryURL   string `mapstructure:"entry_url" yaml:"entry_url"`
	Identifier string `mapstructure:"identifier" yaml:"identifier"`
	// CheckpointTimeout bounds the operator MFA pause. Zero waits forever.
	CheckpointTimeout    time.Duration  `mapstructure:"checkpoint_timeout" yaml:"checkpoint_timeout"`
	CloseLauncherContext bool           `mapstructure:"close_launcher_context" yaml:"close_launcher_context"`
	KeystrokeDelay       time.Duration  `mapstructure:"keystroke_delay" yaml:"keystroke_delay"`
	VendorSeparator      string         `mapstructure:"vendor_separator" yaml:"vendor_separator"`
	Locators             SourceLocators `mapstructure:"locators" yaml:"locators"`
}

// SourceLocators is the declarative locator table for the source system.
// RowLabel and RowView are resolved relative to a result row.
type SourceLocators struct {
	Username         automation.Locator `mapstructure:"username" yaml:"username"`
	UsernameSubmit   automation.Locator `mapstructure:"username_submit" yaml:"username_submit"`
	AppTile          automation.Locator `mapstructure:"app_tile" yaml:"app_tile"`
	Overlay          automation.Locator `mapstructure:"overlay" yaml:"overlay"`
	SearchInput      automation.Locator `mapstructure:"search_input" yaml:"search_input"`
	SearchButton     automation.Locator `mapstructure:"search_button" yaml:"search_button"`
	ResultsContainer automation.Locator `mapstructure:"results_container" yaml:"results_container"`
	ResultRows       automation.Locator `mapstructure:"result_rows" yaml:"result_rows"`
	RowLabel         automation.Locator `mapstructure:"row_label" yaml:"row_label"`
	RowView          automation.Locator `mapstructure:"row_view" yaml:"row_view"`
	DetailFrame      automation.Locator `mapstructure:"detail_frame" yaml:"detail_frame"`
	Vendor           automation.Locator `mapstructure:"vendor" yaml:"vendor"`
	Account          automation.Locator `mapstructure:"account" yaml:"account"`
	Meter            automation.Locator `mapstructure:"meter" yaml:"meter"`
}

// TargetConfig describes the site inventory application.
type TargetConfig struct {
	URL            string         `mapstructure:"url" yaml:"url"`
	Username       string         `mapstructure:"username" yaml:"username"`
	Password       string         `mapstructure:"password" yaml:"password"`
	KeystrokeDelay time.Duration  `mapstructure:"keystroke_delay" yaml:"keystroke_delay"`
	Locators       TargetLocators `mapstructure:"locators" yaml:"locators"`
}

// TargetLocators is the declarative locator table for the target system.
// Ready is optional; when set, login waits for it before returning.
// Suggestion may contain automation.KeyPlaceholder, which is bound to the
// record key for each item.
type TargetLocators struct {
	Username      automation.Locator `mapstructure:"username" yaml:"username"`
	Password      automation.Locator `mapstructure:"password" yaml:"password"`
	Submit        automation.Locator `mapstructure:"submit" yaml:"submit"`
	Ready         automation.Locator `mapstructure:"ready" yaml:"ready"`
	SearchInput   automation.Locator `mapstructure:"search_input" yaml:"search_input"`
	Suggestion    automation.Locator `mapstructure:"suggestion" yaml:"suggestion"`
	SectionHeader automation.Locator `mapstructure:"section_header" yaml:"section_header"`
	VendorInput   automation.Locator `mapstructure:"vendor_input" yaml:"vendor_input"`
	AccountInput  automation.Locator `mapstructure:"account_input" yaml:"account_input"`
	MeterInput    automation.Locator `mapstructure:"meter_input" yaml:"meter_input"`
	Commit        automation.Locator `mapstructure:"commit" yaml:"commit"`
}

// TransferConfig controls the write side.
type TransferConfig struct {
	// CommitEnabled gates the final save. Disabled runs exercise every step
	// except the commit.
	CommitEnabled bool          `mapstructure:"commit_enabled" yaml:"commit_enabled"`
	SettleDelay   time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
}

// BatchConfig tunes the batch controller.
type BatchConfig struct {
	// MinItemInterval paces items; zero disables pacing.
	MinItemInterval time.Duration `mapstructure:"min_item_interval" yaml:"min_item_interval"`
}

// InputConfig locates the work item file.
type InputConfig struct {
	Path        string `mapstructure:"path" yaml:"path"`
	Sheet       string `mapstructure:"sheet" yaml:"sheet"`
	KeyColumn   int    `mapstructure:"key_column" yaml:"key_column"`
	LabelColumn int    `mapstructure:"label_column" yaml:"label_column"`
}

// DiagnosticsConfig controls failure artifacts and the run report.
type DiagnosticsConfig struct {
	ScreenshotDir string `mapstructure:"screenshot_dir" yaml:"screenshot_dir"`
	ReportPath    string `mapstructure:"report_path" yaml:"report_path"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

func setLocator(v *viper.Viper, key string, loc automation.Locator) {
	v.SetDefault(key+".by", string(loc.By))
	v.SetDefault(key+".selector", loc.Selector)
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "recordsync")
	v.SetDefault("logger.log_file", "recordsync.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Database --
	v.SetDefault("database.enabled", false)

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.disable_gpu", false)
	v.SetDefault("browser.poll_interval", "250ms")

	// -- Timeouts --
	v.SetDefault("timeouts.short", "30s")
	v.SetDefault("timeouts.long", "90s")

	// -- Retry --
	v.SetDefault("retry.max_attempts", 4)
	v.SetDefault("retry.delay", "3s")

	// -- Source --
	v.SetDefault("source.checkpoint_timeout", "0s")
	v.SetDefault("source.close_launcher_context", false)
	v.SetDefault("source.keystroke_delay", "100ms")
	v.SetDefault("source.vendor_separator", "/")
	setLocator(v, "source.locators.username", automation.ID("idp-discovery-username"))
	setLocator(v, "source.locators.username_submit", automation.ID("idp-discovery-submit"))
	setLocator(v, "source.locators.app_tile", automation.XPath("//span[@data-se='app-card-title' and @title='ENGIE Impact Platform']"))
	setLocator(v, "source.locators.overlay", automation.XPath("//div[contains(@class,'ui-widget-overlay')]"))
	setLocator(v, "source.locators.search_input", automation.XPath("//input[contains(@class,'search-box') and @placeholder='Search']"))
	setLocator(v, "source.locators.search_button", automation.XPath("//button[contains(@class,'search-btn-enabled')]"))
	setLocator(v, "source.locators.results_container", automation.XPath("//table[contains(@id,'BillResultsGrid')]"))
	setLocator(v, "source.locators.result_rows", automation.XPath("//table[contains(@id,'BillResultsGrid')]//tr[.//a[contains(@id,'VendorName')]]"))
	setLocator(v, "source.locators.row_label", automation.XPath(".//a[contains(@id,'VendorName')]"))
	setLocator(v, "source.locators.row_view", automation.XPath(".//a[normalize-space()='View...']"))
	setLocator(v, "source.locators.detail_frame", automation.XPath("//iframe[@title='content']"))
	setLocator(v, "source.locators.vendor", automation.ID("id-uem-bill-details-vendor-name"))
	setLocator(v, "source.locators.account", automation.ID("id-uem-bill-details-acct-number"))
	setLocator(v, "source.locators.meter", automation.XPath("//td[contains(@class,'uem-bill-details-meter-number-widthSet')]"))

	// -- Target --
	v.SetDefault("target.keystroke_delay", "100ms")
	setLocator(v, "target.locators.username", automation.ID("idToken1"))
	setLocator(v, "target.locators.password", automation.ID("idToken2"))
	setLocator(v, "target.locators.submit", automation.ID("loginButton_0"))
	setLocator(v, "target.locators.ready", automation.XPath("//input[@placeholder='Site/Switch Search']"))
	setLocator(v, "target.locators.search_input", automation.XPath("//input[@placeholder='Site/Switch Search']"))
	setLocator(v, "target.locators.suggestion", automation.XPath("//a[contains(@class,'dropdown-item')][.//mark[text()='{key}']]"))
	setLocator(v, "target.locators.section_header", automation.XPath("//div[contains(@class,'card-header') and .//span[text()='Utility Info']]"))
	setLocator(v, "target.locators.vendor_input", automation.XPath("//label[.='Power Company']/following-sibling::input"))
	setLocator(v, "target.locators.account_input", automation.XPath("//label[.='Account Number']/following-sibling::input"))
	setLocator(v, "target.locators.meter_input", automation.XPath("//label[.='Power Meter']/following-sibling::input"))
	setLocator(v, "target.locators.commit", automation.XPath("//button[normalize-space()='Save Utility Information']"))

	// -- Transfer --
	v.SetDefault("transfer.commit_enabled", false)
	v.SetDefault("transfer.settle_delay", "1s")

	// -- Batch --
	v.SetDefault("batch.min_item_interval", "0s")

	// -- Input --
	v.SetDefault("input.path", "input.xlsx")
	v.SetDefault("input.key_column", 0)
	v.SetDefault("input.label_column", 1)

	// -- Diagnostics --
	v.SetDefault("diagnostics.screenshot_dir", "screenshots")
	v.SetDefault("diagnostics.report_path", "")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("target.password", "RECORDSYNC_TARGET_PASSWORD")
	_ = v.BindEnv("target.username", "RECORDSYNC_TARGET_USERNAME")
	_ = v.BindEnv("source.identifier", "RECORDSYNC_SOURCE_IDENTIFIER")
	_ = v.BindEnv("database.url", "RECORDSYNC_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) expandPaths() error {
	paths := []*string{
		&c.InputCfg.Path,
		&c.DiagnosticsCfg.ScreenshotDir,
		&c.DiagnosticsCfg.ReportPath,
		&c.LoggerCfg.LogFile,
		&c.BrowserCfg.UserDataDir,
	}
	for _, p := range paths {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("expanding path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.TimeoutsCfg.Short <= 0 || c.TimeoutsCfg.Long <= 0 {
		return fmt.Errorf("timeouts.short and timeouts.long must be positive durations")
	}
	if c.TimeoutsCfg.Short > c.TimeoutsCfg.Long {
		return fmt.Errorf("timeouts.short must not exceed timeouts.long")
	}
	if c.RetryCfg.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if c.RetryCfg.Delay < 0 {
		return fmt.Errorf("retry.delay must not be negative")
	}
	if c.SourceCfg.VendorSeparator == "" {
		return fmt.Errorf("source.vendor_separator must not be empty")
	}
	if c.InputCfg.KeyColumn < 0 || c.InputCfg.LabelColumn < 0 {
		return fmt.Errorf("input columns must be zero-based non-negative indexes")
	}
	if c.DatabaseCfg.Enabled && c.DatabaseCfg.URL == "" {
		return fmt.Errorf("database.url is required when database.enabled is true")
	}
	if err := c.SourceCfg.Locators.Validate(); err != nil {
		return fmt.Errorf("source.locators: %w", err)
	}
	if err := c.TargetCfg.Locators.Validate(); err != nil {
		return fmt.Errorf("target.locators: %w", err)
	}
	return nil
}

// ValidateCredentials checks the fields needed to actually log in. It is
// separate from Validate so offline commands work without secrets.
func (c *Config) ValidateCredentials() error {
	var missing []string
	if c.SourceCfg.EntryURL == "" {
		missing = append(missing, "source.entry_url")
	}
	if c.SourceCfg.Identifier == "" {
		missing = append(missing, "source.identifier")
	}
	if c.TargetCfg.URL == "" {
		missing = append(missing, "target.url")
	}
	if c.TargetCfg.Username == "" {
		missing = append(missing, "target.username")
	}
	if c.TargetCfg.Password == "" {
		missing = append(missing, "target.password (or RECORDSYNC_TARGET_PASSWORD)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Validate checks every required source locator.
func (l SourceLocators) Validate() error {
	return validateLocators(map[string]automation.Locator{
		"username":          l.Username,
		"username_submit":   l.UsernameSubmit,
		"app_tile":          l.AppTile,
		"overlay":           l.Overlay,
		"search_input":      l.SearchInput,
		"search_button":     l.SearchButton,
		"results_container": l.ResultsContainer,
		"result_rows":       l.ResultRows,
		"row_label":         l.RowLabel,
		"row_view":          l.RowView,
		"detail_frame":      l.DetailFrame,
		"vendor":            l.Vendor,
		"account":           l.Account,
		"meter":             l.Meter,
	})
}

// Validate checks every required target locator. Ready is optional.
func (l TargetLocators) Validate() error {
	if !l.Ready.IsZero() {
		if err := l.Ready.Validate(); err != nil {
			return fmt.Errorf("ready: %w", err)
		}
	}
	return validateLocators(map[string]automation.Locator{
		"username":       l.Username,
		"password":       l.Password,
		"submit":         l.Submit,
		"search_input":   l.SearchInput,
		"suggestion":     l.Suggestion,
		"section_header": l.SectionHeader,
		"vendor_input":   l.VendorInput,
		"account_input":  l.AccountInput,
		"meter_input":    l.MeterInput,
		"commit":         l.Commit,
	})
}

func validateLocators(m map[string]automation.Locator) error {
	for name, loc := range m {
		if err := loc.Validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
