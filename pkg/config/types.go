// Package config manages application-wide settings and directory structures.
// It follows XDG specifications for storing configuration and state,
// and reads user settings from a YAML file with PIX_* environment overrides.
package config

import (
	"fmt"
	"time"
)

// ExtractMode selects how links are pulled out of a results page.
type ExtractMode string

const (
	// ModeHTML matches container elements in an HTML page.
	ModeHTML ExtractMode = "html"
	// ModeJQ runs a jq query over a JSON response.
	ModeJQ ExtractMode = "jq"
)

// Settings is the user-tunable part of the configuration.
type Settings struct {
	Search  SearchSettings  `mapstructure:"search"`
	Install InstallSettings `mapstructure:"install"`
	UI      UISettings      `mapstructure:"ui"`
	HTTP    HTTPSettings    `mapstructure:"http"`
	Logging LoggingSettings `mapstructure:"logging"`
}

// SearchSettings describe the results page.
type SearchSettings struct {
	// URL is the page address; the query is appended verbatim.
	URL       string      `mapstructure:"url"`
	Container string      `mapstructure:"container"`
	Class     string      `mapstructure:"class"`
	Scheme    string      `mapstructure:"scheme"`
	Mode      ExtractMode `mapstructure:"mode"`
	JQ        string      `mapstructure:"jq"`
}

// InstallSettings tune how images are saved.
type InstallSettings struct {
	Parallel int `mapstructure:"parallel"`
	// Rate is the maximum number of new downloads per second; 0 is unlimited.
	Rate float64 `mapstructure:"rate"`
	// Dir is the default target directory.
	Dir string `mapstructure:"dir"`
}

type UISettings struct {
	RefreshMS int `mapstructure:"refresh_ms"`
}

type HTTPSettings struct {
	UserAgent string `mapstructure:"user_agent"`
}

type LoggingSettings struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// Refresh is the progress polling cadence.
func (s UISettings) Refresh() time.Duration {
	return time.Duration(s.RefreshMS) * time.Millisecond
}

func (s Settings) validate() error {
	switch s.Search.Mode {
	case ModeHTML:
		if s.Search.Container == "" || s.Search.Class == "" {
			return fmt.Errorf("search.container and search.class are required in %s mode", ModeHTML)
		}
	case ModeJQ:
		if s.Search.JQ == "" {
			return fmt.Errorf("search.jq is required in %s mode", ModeJQ)
		}
	default:
		return fmt.Errorf("unknown search.mode %q", s.Search.Mode)
	}
	if s.Search.URL == "" {
		return fmt.Errorf("search.url is required")
	}
	if s.Install.Parallel < 1 {
		return fmt.Errorf("install.parallel must be at least 1, got %d", s.Install.Parallel)
	}
	if s.Install.Rate < 0 {
		return fmt.Errorf("install.rate cannot be negative")
	}
	if s.UI.RefreshMS <= 0 {
		return fmt.Errorf("ui.refresh_ms must be positive, got %d", s.UI.RefreshMS)
	}
	return nil
}
