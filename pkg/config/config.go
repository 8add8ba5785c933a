package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// ReadOnly defines the read-only interface for Config.
// Immutable
type ReadOnly interface {
	GetConfigDir() string
	GetStateDir() string
	// GetConfigFile is the settings file that was read, or "" if none.
	GetConfigFile() string
	Settings() Settings
	Freeze()
	Checkout() Writable
}

// Writable defines the writable interface for Config.
// Mutable
type Writable interface {
	ReadOnly
	SetLogLevel(string)
	SetLogFile(string)
	SetInstallDir(string)
}

// Config holds the base directories and settings for pix.
// Mutable
type Config struct {
	configDir string
	stateDir  string

	configFile string
	settings   Settings

	frozen bool
	edited bool
}

var _ ReadOnly = (*Config)(nil)
var _ Writable = (*Config)(nil)

func (c *Config) GetConfigDir() string  { return c.configDir }
func (c *Config) GetStateDir() string   { return c.stateDir }
func (c *Config) GetConfigFile() string { return c.configFile }
func (c *Config) Settings() Settings    { return c.settings }

func (c *Config) SetLogLevel(s string) {
	c.mustEdit()
	c.settings.Logging.Level = s
}

func (c *Config) SetLogFile(s string) {
	c.mustEdit()
	c.settings.Logging.File = s
}

func (c *Config) SetInstallDir(s string) {
	c.mustEdit()
	c.settings.Install.Dir = s
}

func (c *Config) mustEdit() {
	if c.frozen {
		panic("cannot modify frozen config")
	}
}

func (c *Config) Freeze() {
	c.frozen = true
}

func (c *Config) Checkout() Writable {
	if c.frozen {
		panic("cannot checkout from frozen config")
	}
	if c.edited {
		panic("config already checked out")
	}
	c.edited = true
	return c
}

// Init builds the configuration from the XDG base directories. Settings are
// read from configFile if given, otherwise from config.yaml in the config
// dir when present.
func Init(configFile string) (ReadOnly, error) {
	c := &Config{
		configDir: filepath.Join(xdg.ConfigHome, "pix"),
		stateDir:  filepath.Join(xdg.StateHome, "pix"),
	}
	if err := c.load(configFile, filepath.Join(xdg.UserDirs.Pictures, "pix")); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) defaults(v *viper.Viper, picturesDir string) {
	v.SetDefault("search.url", "https://www.flickr.com/search/?text=")
	v.SetDefault("search.container", "div")
	v.SetDefault("search.class", "photo-list-photo-container")
	v.SetDefault("search.scheme", "https:")
	v.SetDefault("search.mode", string(ModeHTML))
	v.SetDefault("search.jq", "")
	v.SetDefault("install.parallel", 4)
	v.SetDefault("install.rate", 0)
	v.SetDefault("install.dir", picturesDir)
	v.SetDefault("ui.refresh_ms", 25)
	v.SetDefault("http.user_agent", "Mozilla/5.0 (X11; Linux x86_64) pix/1.0")
	v.SetDefault("logging.file", filepath.Join(c.stateDir, "pix.log"))
	v.SetDefault("logging.level", "INFO")
}

func (c *Config) load(configFile, picturesDir string) error {
	v := viper.New()
	c.defaults(v, picturesDir)

	v.SetEnvPrefix("PIX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(c.configDir)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	c.configFile = v.ConfigFileUsed()

	if err := v.Unmarshal(&c.settings); err != nil {
		return fmt.Errorf("error parsing config: %w", err)
	}
	if err := c.settings.validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
