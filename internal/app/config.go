package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hyperifyio/gomag/internal/compile"
	"github.com/hyperifyio/gomag/internal/layout"
)

// Page drivers.
const (
	BrowserStatic = "static"
	BrowserChrome = "chrome"
)

// Defaults shared by the CLI flags and the config layers.
const (
	DefaultURLsPath     = "urls.txt"
	DefaultOutputPath   = "magazine.pdf"
	DefaultWorkDir      = ".gomag"
	DefaultEngine       = "tectonic"
	DefaultTimeout      = 30 * time.Second
	DefaultAttempts     = 2
	DefaultWorkers      = 1
	DefaultMediaWorkers = 4
)

// Config holds runtime configuration for the application.
type Config struct {
	URLsPath   string
	OutputPath string

	Layout layout.Config

	// Session
	StorageState string

	// Page driver
	Browser    string
	BrowserBin string
	Headless   bool

	// Extraction
	Timeout  time.Duration
	Attempts int
	Workers  int
	FailFast bool

	MediaWorkers int

	// Compilation
	Engine  string
	WorkDir string
	KeepTex bool

	Verbose bool
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() Config {
	return Config{
		URLsPath:     DefaultURLsPath,
		OutputPath:   DefaultOutputPath,
		Layout:       layout.DefaultConfig(),
		Browser:      BrowserChrome,
		Headless:     true,
		Timeout:      DefaultTimeout,
		Attempts:     DefaultAttempts,
		Workers:      DefaultWorkers,
		MediaWorkers: DefaultMediaWorkers,
		Engine:       DefaultEngine,
		WorkDir:      DefaultWorkDir,
	}
}

// ValidateConfig reports every problem with cfg at once.
func ValidateConfig(cfg Config) error {
	var errs []error
	if strings.TrimSpace(cfg.URLsPath) == "" {
		errs = append(errs, errors.New("config: urls path is required"))
	}
	if strings.TrimSpace(cfg.OutputPath) == "" {
		errs = append(errs, errors.New("config: output path is required"))
	}
	if err := cfg.Layout.Validate(); err != nil {
		errs = append(errs, err)
	}
	switch cfg.Browser {
	case BrowserStatic, BrowserChrome:
	default:
		errs = append(errs, fmt.Errorf("config: unknown browser %q (want static or chrome)", cfg.Browser))
	}
	if _, err := compile.New(cfg.Engine, "", false); err != nil {
		errs = append(errs, fmt.Errorf("config: %w", err))
	}
	if cfg.Timeout <= 0 {
		errs = append(errs, errors.New("config: timeout must be positive"))
	}
	if cfg.Attempts < 1 || cfg.Workers < 1 || cfg.MediaWorkers < 1 {
		errs = append(errs, errors.New("config: attempts and worker counts must be at least 1"))
	}
	return errors.Join(errs...)
}
