// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/haochenhowardyang/club-reservation-service/internal/timegrid"
)

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Filename string `yaml:"filename"`
}

type PriorityWindowConfig struct {
	// Days are lower-case weekday names, e.g. ["friday", "saturday", "sunday"].
	Days    []string      `yaml:"days"`
	Start   string        `yaml:"start"`
	End     string        `yaml:"end"`
	Release time.Duration `yaml:"release"`
}

type ResourceConfig struct {
	Timezone                  string               `yaml:"timezone"`
	LastStart                 string               `yaml:"last_start"`
	OvernightUntil            string               `yaml:"overnight_until"`
	BookingHorizonDays        int                  `yaml:"booking_horizon_days"`
	BarDurationLimit          time.Duration        `yaml:"bar_duration_limit"`
	BarDurationPartyThreshold int                  `yaml:"bar_duration_party_threshold"`
	PriorityWindow            PriorityWindowConfig `yaml:"priority_window"`
}

type PokerConfig struct {
	MaxPlayers int `yaml:"max_players"`
	// SessionLength is the span recorded on a seat reservation.
	SessionLength time.Duration `yaml:"session_length"`
}

type TokenConfig struct {
	JoinInviteTTL         time.Duration `yaml:"join_invite_ttl"`
	ConfirmReservationTTL time.Duration `yaml:"confirm_reservation_ttl"`
}

type SchedulerConfig struct {
	AutoCloseCron  string `yaml:"auto_close_cron"`
	TokenSweepCron string `yaml:"token_sweep_cron"`
}

type NotificationConfig struct {
	SESRegion  string        `yaml:"ses_region"`
	SESSender  string        `yaml:"ses_sender"`
	AMQPQueue  string        `yaml:"amqp_queue"`
	Cooldown   time.Duration `yaml:"cooldown"`
	MaxPerHour int           `yaml:"max_per_hour"`
	Timeout    time.Duration `yaml:"timeout"`

	AWSAccessKeyID     string `yaml:"-"` // Loaded from environment
	AWSSecretAccessKey string `yaml:"-"` // Loaded from environment
	AMQPURL            string `yaml:"-"` // Loaded from environment
}

type IdentityConfig struct {
	StrikeLimit   int           `yaml:"strike_limit"`
	CognitoPoolID string        `yaml:"cognito_pool_id"`
	DefaultRegion string        `yaml:"default_region"`
	Timeout       time.Duration `yaml:"timeout"`
}

type Config struct {
	App struct {
		Name        string `yaml:"name"`
		Environment string `yaml:"environment"`
		Port        int    `yaml:"port"`
		BaseURL     string `yaml:"base_url"`
	} `yaml:"app"`

	Database      DatabaseConfig     `yaml:"database"`
	Resource      ResourceConfig     `yaml:"resource"`
	Poker         PokerConfig        `yaml:"poker"`
	Tokens        TokenConfig        `yaml:"tokens"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Notifications NotificationConfig `yaml:"notifications"`
	Identity      IdentityConfig     `yaml:"identity"`
}

// Default returns a configuration with every engine default filled in.
func Default() *Config {
	cfg := &Config{}
	cfg.App.Name = "club-reservations"
	cfg.App.Environment = "development"
	cfg.App.Port = 8080
	cfg.Database = DatabaseConfig{Driver: "sqlite", Filename: "data/club.db"}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	r := &c.Resource
	if r.Timezone == "" {
		r.Timezone = "America/New_York"
	}
	if r.LastStart == "" {
		r.LastStart = "23:30"
	}
	if r.OvernightUntil == "" {
		r.OvernightUntil = "02:00"
	}
	if r.BookingHorizonDays == 0 {
		r.BookingHorizonDays = 14
	}
	if r.BarDurationLimit == 0 {
		r.BarDurationLimit = 2 * time.Hour
	}
	if r.BarDurationPartyThreshold == 0 {
		r.BarDurationPartyThreshold = 4
	}
	if r.PriorityWindow.Days == nil {
		r.PriorityWindow.Days = []string{"friday", "saturday", "sunday"}
	}
	if r.PriorityWindow.Start == "" {
		r.PriorityWindow.Start = "18:00"
	}
	if r.PriorityWindow.End == "" {
		r.PriorityWindow.End = "24:00"
	}
	if r.PriorityWindow.Release == 0 {
		r.PriorityWindow.Release = 24 * time.Hour
	}
	if c.Poker.MaxPlayers == 0 {
		c.Poker.MaxPlayers = 9
	}
	if c.Poker.SessionLength == 0 {
		c.Poker.SessionLength = 4 * time.Hour
	}
	if c.Tokens.JoinInviteTTL == 0 {
		c.Tokens.JoinInviteTTL = 24 * time.Hour
	}
	if c.Tokens.ConfirmReservationTTL == 0 {
		c.Tokens.ConfirmReservationTTL = 2 * time.Hour
	}
	if c.Scheduler.AutoCloseCron == "" {
		c.Scheduler.AutoCloseCron = "*/5 * * * *"
	}
	if c.Scheduler.TokenSweepCron == "" {
		c.Scheduler.TokenSweepCron = "*/5 * * * *"
	}
	if c.Notifications.AMQPQueue == "" {
		c.Notifications.AMQPQueue = "notifications.dispatch"
	}
	if c.Notifications.Cooldown == 0 {
		c.Notifications.Cooldown = time.Minute
	}
	if c.Notifications.MaxPerHour == 0 {
		c.Notifications.MaxPerHour = 10
	}
	if c.Notifications.Timeout == 0 {
		c.Notifications.Timeout = 5 * time.Second
	}
	if c.Identity.StrikeLimit == 0 {
		c.Identity.StrikeLimit = 3
	}
	if c.Identity.DefaultRegion == "" {
		c.Identity.DefaultRegion = "US"
	}
	if c.Identity.Timeout == 0 {
		c.Identity.Timeout = 3 * time.Second
	}
}

// Load loads both .env and yaml configuration
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration, fills defaults, reads secrets from the
// environment and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	cfg.applyDefaults()

	// Load sensitive values from environment
	cfg.Notifications.AWSAccessKeyID = os.Getenv("AWS_ACCESS_KEY_ID")
	cfg.Notifications.AWSSecretAccessKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	cfg.Notifications.AMQPURL = os.Getenv("AMQP_URL")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}
	if c.App.Port == 0 {
		return fmt.Errorf("app port is required")
	}
	if c.Database.Driver == "" {
		return fmt.Errorf("database driver is required")
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Filename == "" {
			return fmt.Errorf("database filename is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Resource.BookingHorizonDays < 0 {
		return fmt.Errorf("booking_horizon_days must be 0 or greater")
	}
	if _, err := c.GridOptions(nil); err != nil {
		return err
	}
	if c.Poker.MaxPlayers < 1 {
		return fmt.Errorf("poker max_players must be at least 1")
	}
	if c.Poker.SessionLength < timegrid.SlotMinutes*time.Minute {
		return fmt.Errorf("poker session_length must be at least %d minutes", timegrid.SlotMinutes)
	}
	if c.Tokens.JoinInviteTTL < 0 || c.Tokens.ConfirmReservationTTL < 0 {
		return fmt.Errorf("token ttls must be positive")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for name, expr := range map[string]string{
		"auto_close_cron":  c.Scheduler.AutoCloseCron,
		"token_sweep_cron": c.Scheduler.TokenSweepCron,
	} {
		if _, err := parser.Parse(expr); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, expr, err)
		}
	}

	return nil
}

// Location loads the resource timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Resource.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid resource timezone %q: %w", c.Resource.Timezone, err)
	}
	return loc, nil
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// PriorityDays resolves the configured weekday names.
func (c *Config) PriorityDays() ([]time.Weekday, error) {
	days := make([]time.Weekday, 0, len(c.Resource.PriorityWindow.Days))
	for _, name := range c.Resource.PriorityWindow.Days {
		day, ok := weekdays[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("invalid priority window day %q", name)
		}
		days = append(days, day)
	}
	return days, nil
}

// GridOptions builds the time-grid settings from the resource section.
func (c *Config) GridOptions(clock timegrid.Clock) (timegrid.Options, error) {
	loc, err := c.Location()
	if err != nil {
		return timegrid.Options{}, err
	}
	days, err := c.PriorityDays()
	if err != nil {
		return timegrid.Options{}, err
	}
	lastStart, err := timegrid.ParseTimeOfDay(c.Resource.LastStart)
	if err != nil {
		return timegrid.Options{}, fmt.Errorf("last_start: %w", err)
	}
	overnight, err := timegrid.ParseTimeOfDay(c.Resource.OvernightUntil)
	if err != nil {
		return timegrid.Options{}, fmt.Errorf("overnight_until: %w", err)
	}
	start, err := timegrid.ParseTimeOfDay(c.Resource.PriorityWindow.Start)
	if err != nil {
		return timegrid.Options{}, fmt.Errorf("priority_window.start: %w", err)
	}
	end, err := timegrid.ParseTimeOfDay(c.Resource.PriorityWindow.End)
	if err != nil {
		return timegrid.Options{}, fmt.Errorf("priority_window.end: %w", err)
	}
	return timegrid.Options{
		Location:       loc,
		LastStart:      lastStart,
		OvernightUntil: overnight,
		Priority: timegrid.PriorityWindow{
			Days:    days,
			Start:   start,
			End:     end,
			Release: c.Resource.PriorityWindow.Release,
		},
		Clock: clock,
	}, nil
}
