package settings

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type BackendSettings struct {
	BaseURL string        `yaml:"base-url" mapstructure:"base-url"`
	UserID  string        `yaml:"user-id" mapstructure:"user-id"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// Settings are the tunables of the synchronization engine.
type Settings struct {
	// PageSize caps the limit of a single history request.
	PageSize int `yaml:"page-size" mapstructure:"page-size"`
	// MaxHistoryPages bounds unfiltered history paging for the conversation list.
	MaxHistoryPages int `yaml:"max-history-pages" mapstructure:"max-history-pages"`
	// ViewSize is the number of trailing records handed to the renderer.
	ViewSize int `yaml:"view-size" mapstructure:"view-size"`

	Debounce      time.Duration `yaml:"debounce" mapstructure:"debounce"`
	SafetyTimeout time.Duration `yaml:"safety-timeout" mapstructure:"safety-timeout"`

	ScrollRetries    int           `yaml:"scroll-retries" mapstructure:"scroll-retries"`
	ScrollRetryDelay time.Duration `yaml:"scroll-retry-delay" mapstructure:"scroll-retry-delay"`

	Backend BackendSettings `yaml:"backend" mapstructure:"backend"`
}

func Defaults() *Settings {
	return &Settings{
		PageSize:         100,
		MaxHistoryPages:  20,
		ViewSize:         50,
		Debounce:         time.Second,
		SafetyTimeout:    15 * time.Second,
		ScrollRetries:    2,
		ScrollRetryDelay: 50 * time.Millisecond,
		Backend: BackendSettings{
			BaseURL: "http://localhost:8080",
			Timeout: 30 * time.Second,
		},
	}
}

func (s *Settings) Validate() error {
	if s.PageSize <= 0 {
		return errors.Errorf("page-size must be positive, got %d", s.PageSize)
	}
	if s.MaxHistoryPages <= 0 {
		return errors.Errorf("max-history-pages must be positive, got %d", s.MaxHistoryPages)
	}
	if s.ViewSize <= 0 {
		return errors.Errorf("view-size must be positive, got %d", s.ViewSize)
	}
	if s.Debounce < 0 {
		return errors.Errorf("debounce must not be negative, got %s", s.Debounce)
	}
	if s.SafetyTimeout <= 0 {
		return errors.Errorf("safety-timeout must be positive, got %s", s.SafetyTimeout)
	}
	if s.ScrollRetries < 2 {
		return errors.Errorf("scroll-retries must be at least 2, got %d", s.ScrollRetries)
	}
	if s.ScrollRetryDelay <= 0 {
		return errors.Errorf("scroll-retry-delay must be positive, got %s", s.ScrollRetryDelay)
	}
	return nil
}

// FromViper overlays the keys set in v onto the defaults.
func FromViper(v *viper.Viper) (*Settings, error) {
	s := Defaults()
	if v == nil {
		return s, nil
	}

	setInt := func(key string, dst *int) {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v.IsSet(key) {
			*dst = v.GetDuration(key)
		}
	}
	setString := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}

	setInt("page-size", &s.PageSize)
	setInt("max-history-pages", &s.MaxHistoryPages)
	setInt("view-size", &s.ViewSize)
	setDuration("debounce", &s.Debounce)
	setDuration("safety-timeout", &s.SafetyTimeout)
	setInt("scroll-retries", &s.ScrollRetries)
	setDuration("scroll-retry-delay", &s.ScrollRetryDelay)
	setString("backend.base-url", &s.Backend.BaseURL)
	setString("backend.user-id", &s.Backend.UserID)
	setDuration("backend.timeout", &s.Backend.Timeout)

	if err := s.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid settings")
	}
	return s, nil
}
