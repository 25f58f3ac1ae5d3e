package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/evanschultz/cardclock/internal/domain"
	"github.com/kelseyhightower/envconfig"
	toml "github.com/pelletier/go-toml/v2"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "cardclock"

// Config is the full TOML configuration.
type Config struct {
	Database  DatabaseConfig         `toml:"database"`
	Trello    TrelloConfig           `toml:"trello"`
	RateLimit RateLimitConfig        `toml:"rate_limit"`
	Calendar  CalendarConfig         `toml:"calendar"`
	Report    ReportConfig           `toml:"report"`
	Logging   LoggingConfig          `toml:"logging"`
	Server    ServerConfig           `toml:"server"`
	Boards    map[string]BoardConfig `toml:"boards"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type TrelloConfig struct {
	APIKey       string `toml:"api_key"`
	Token        string `toml:"token"`
	BaseURL      string `toml:"base_url"`
	Timeout      string `toml:"timeout"`
	Organization string `toml:"organization"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
	MaxAttempts       int     `toml:"max_attempts"`
	BaseBackoff       string  `toml:"base_backoff"`
	MaxBackoff        string  `toml:"max_backoff"`
}

type CalendarConfig struct {
	HolidaySet string          `toml:"holiday_set"`
	Timezone   string          `toml:"timezone"`
	Holidays   []HolidayConfig `toml:"holidays"`
}

// HolidayConfig is one custom holiday. A weekday makes it floating; otherwise day is required.
type HolidayConfig struct {
	Name       string `toml:"name"`
	Month      int    `toml:"month"`
	Day        int    `toml:"day"`
	Weekday    string `toml:"weekday"`
	Occurrence int    `toml:"occurrence"`
}

type ReportConfig struct {
	Concurrency int    `toml:"concurrency"`
	OutputDir   string `toml:"output_dir"`
}

type LoggingConfig struct {
	Level   string        `toml:"level"`
	DevFile DevFileConfig `toml:"dev_file"`
}

type DevFileConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

type ServerConfig struct {
	Bind        string `toml:"bind"`
	APIEndpoint string `toml:"api_endpoint"`
	MCPEndpoint string `toml:"mcp_endpoint"`
}

// BoardConfig seeds a board's list roles. Values saved through the app take precedence.
type BoardConfig struct {
	CurrentWorkList string   `toml:"current_work_list,omitempty"`
	ReleasedList    string   `toml:"released_list,omitempty"`
	QAList          string   `toml:"qa_list,omitempty"`
	AutoPauseLists  []string `toml:"auto_pause_lists,omitempty"`
}

// envOverrides lists the values read from CARDCLOCK_* variables.
type envOverrides struct {
	TrelloAPIKey  string `envconfig:"TRELLO_API_KEY"`
	TrelloToken   string `envconfig:"TRELLO_TOKEN"`
	TrelloBaseURL string `envconfig:"TRELLO_BASE_URL"`
	LogLevel      string `envconfig:"LOG_LEVEL"`
}

var logLevels = []string{"debug", "info", "warn", "error", "fatal"}

// Default returns the configuration used when no file is present.
func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Path: dbPath,
		},
		Trello: TrelloConfig{
			BaseURL: "https://api.trello.com",
			Timeout: "30s",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			Burst:             10,
			MaxAttempts:       5,
			BaseBackoff:       "500ms",
			MaxBackoff:        "30s",
		},
		Calendar: CalendarConfig{
			HolidaySet: domain.DefaultHolidaySet,
			Timezone:   "UTC",
		},
		Report: ReportConfig{
			Concurrency: 4,
		},
		Logging: LoggingConfig{
			Level: "info",
			DevFile: DevFileConfig{
				Enabled: true,
				Dir:     ".cardclock/log",
			},
		},
		Server: ServerConfig{
			Bind:        "127.0.0.1:8080",
			APIEndpoint: "/api/v1",
			MCPEndpoint: "/mcp",
		},
		Boards: map[string]BoardConfig{},
	}
}

// Load decodes path over defaults, applies env overrides and validates the result.
// A missing or empty file yields the defaults.
func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) != "" {
		content, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		case len(content) > 0:
			if err := toml.Unmarshal(content, &cfg); err != nil {
				return Config{}, fmt.Errorf("decode toml: %w", err)
			}
		}
	}
	if cfg.Boards == nil {
		cfg.Boards = map[string]BoardConfig{}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overlays non-empty CARDCLOCK_* variables.
func (c *Config) ApplyEnv() error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("process environment: %w", err)
	}
	if v := strings.TrimSpace(env.TrelloAPIKey); v != "" {
		c.Trello.APIKey = v
	}
	if v := strings.TrimSpace(env.TrelloToken); v != "" {
		c.Trello.Token = v
	}
	if v := strings.TrimSpace(env.TrelloBaseURL); v != "" {
		c.Trello.BaseURL = v
	}
	if v := strings.TrimSpace(env.LogLevel); v != "" {
		c.Logging.Level = v
	}
	return nil
}

// Validate reports the first invalid key.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database.path is required")
	}

	base, err := url.Parse(strings.TrimSpace(c.Trello.BaseURL))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return fmt.Errorf("trello.base_url must be an absolute url: %q", c.Trello.BaseURL)
	}
	if _, err := positiveDuration("trello.timeout", c.Trello.Timeout); err != nil {
		return err
	}

	if c.RateLimit.RequestsPerSecond <= 0 {
		return errors.New("rate_limit.requests_per_second must be > 0")
	}
	if c.RateLimit.Burst < 1 {
		return errors.New("rate_limit.burst must be >= 1")
	}
	if c.RateLimit.MaxAttempts < 1 {
		return errors.New("rate_limit.max_attempts must be >= 1")
	}
	baseBackoff, err := positiveDuration("rate_limit.base_backoff", c.RateLimit.BaseBackoff)
	if err != nil {
		return err
	}
	maxBackoff, err := positiveDuration("rate_limit.max_backoff", c.RateLimit.MaxBackoff)
	if err != nil {
		return err
	}
	if maxBackoff < baseBackoff {
		return errors.New("rate_limit.max_backoff must be >= rate_limit.base_backoff")
	}

	if _, err := c.HolidayRules(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}

	if c.Report.Concurrency < 1 {
		return errors.New("report.concurrency must be >= 1")
	}

	if !slices.Contains(logLevels, strings.ToLower(strings.TrimSpace(c.Logging.Level))) {
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}

	if strings.TrimSpace(c.Server.Bind) == "" {
		return errors.New("server.bind is required")
	}
	for key, endpoint := range map[string]string{
		"server.api_endpoint": c.Server.APIEndpoint,
		"server.mcp_endpoint": c.Server.MCPEndpoint,
	} {
		if !strings.HasPrefix(strings.TrimSpace(endpoint), "/") {
			return fmt.Errorf("%s must start with /: %q", key, endpoint)
		}
	}

	for boardID, board := range c.Boards {
		if strings.TrimSpace(boardID) == "" {
			return errors.New("boards keys must be non-empty board ids")
		}
		for i, list := range board.AutoPauseLists {
			if strings.TrimSpace(list) == "" {
				return fmt.Errorf("boards.%s.auto_pause_lists[%d] is empty", boardID, i)
			}
		}
	}
	return nil
}

// TrelloTimeout returns the per-request timeout.
func (c Config) TrelloTimeout() time.Duration {
	d, _ := time.ParseDuration(strings.TrimSpace(c.Trello.Timeout))
	return d
}

// BaseBackoff returns the first retry delay.
func (c Config) BaseBackoff() time.Duration {
	d, _ := time.ParseDuration(strings.TrimSpace(c.RateLimit.BaseBackoff))
	return d
}

// MaxBackoff returns the retry delay cap.
func (c Config) MaxBackoff() time.Duration {
	d, _ := time.ParseDuration(strings.TrimSpace(c.RateLimit.MaxBackoff))
	return d
}

// Location loads the calendar time zone.
func (c Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Calendar.Timezone)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid calendar.timezone %q: %w", name, err)
	}
	return loc, nil
}

// HolidayRules returns the named holiday set followed by the custom rules.
func (c Config) HolidayRules() ([]domain.HolidayRule, error) {
	setName := strings.ToLower(strings.TrimSpace(c.Calendar.HolidaySet))
	if setName == "" {
		setName = domain.DefaultHolidaySet
	}
	rules, ok := domain.HolidaySet(setName)
	if !ok {
		return nil, fmt.Errorf("invalid calendar.holiday_set %q (known: %s)", c.Calendar.HolidaySet, strings.Join(domain.HolidaySetNames(), ", "))
	}
	rules = slices.Clone(rules)
	for i, h := range c.Calendar.Holidays {
		rule, err := h.rule()
		if err != nil {
			return nil, fmt.Errorf("calendar.holidays[%d]: %w", i, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// BusinessCalendar builds the calendar described by the [calendar] section.
func (c Config) BusinessCalendar() (*domain.BusinessCalendar, error) {
	rules, err := c.HolidayRules()
	if err != nil {
		return nil, err
	}
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}
	return domain.NewBusinessCalendar(rules, loc)
}

func (h HolidayConfig) rule() (domain.HolidayRule, error) {
	name := strings.TrimSpace(h.Name)
	var rule domain.HolidayRule
	if weekday := strings.TrimSpace(h.Weekday); weekday != "" {
		wd, err := parseWeekday(weekday)
		if err != nil {
			return domain.HolidayRule{}, err
		}
		rule = domain.FloatingHoliday(name, time.Month(h.Month), wd, h.Occurrence)
	} else {
		rule = domain.FixedHoliday(name, time.Month(h.Month), h.Day)
	}
	if err := rule.Validate(); err != nil {
		return domain.HolidayRule{}, err
	}
	return rule, nil
}

func parseWeekday(raw string) (time.Weekday, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if value == name || value == name[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown weekday %q", domain.ErrInvalidHolidayRule, raw)
}

func positiveDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be > 0", key)
	}
	return d, nil
}

// EnsureConfigDir creates the parent directory of path.
func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// UpsertBoard writes one [boards.<id>] table into the TOML file at path, keeping every other key.
func UpsertBoard(path, boardID string, board BoardConfig) error {
	boardID = strings.TrimSpace(boardID)
	if strings.TrimSpace(path) == "" {
		return errors.New("config path is required")
	}
	if boardID == "" {
		return errors.New("board id is required")
	}

	doc := map[string]any{}
	content, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return fmt.Errorf("read config: %w", err)
	case len(content) > 0:
		if err := toml.Unmarshal(content, &doc); err != nil {
			return fmt.Errorf("decode toml: %w", err)
		}
	}

	boards, _ := doc["boards"].(map[string]any)
	if boards == nil {
		boards = map[string]any{}
	}
	entry := map[string]any{}
	if v := strings.TrimSpace(board.CurrentWorkList); v != "" {
		entry["current_work_list"] = v
	}
	if v := strings.TrimSpace(board.ReleasedList); v != "" {
		entry["released_list"] = v
	}
	if v := strings.TrimSpace(board.QAList); v != "" {
		entry["qa_list"] = v
	}
	if len(board.AutoPauseLists) > 0 {
		lists := make([]string, 0, len(board.AutoPauseLists))
		for _, list := range board.AutoPauseLists {
			if list = strings.TrimSpace(list); list != "" {
				lists = append(lists, list)
			}
		}
		entry["auto_pause_lists"] = lists
	}
	boards[boardID] = entry
	doc["boards"] = boards

	out, err := toml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode toml: %w", err)
	}
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
