package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hyperifyio/gomag/internal/layout"
)

// EnvPrefix starts every environment key the tool reads.
const EnvPrefix = "GOMAG_"

// ApplyEnvOverrides overrides cfg fields with environment variables when they
// are set. Env takes precedence over the config file; flags are applied
// afterwards and stay highest.
func ApplyEnvOverrides(cfg *Config) error {
	if cfg == nil {
		return nil
	}
	var errs []error
	get := func(key string) string { return strings.TrimSpace(os.Getenv(EnvPrefix + key)) }

	setStr := func(dst *string, key string) {
		if v := get(key); v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, key string) {
		if v := get(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				errs = append(errs, fmt.Errorf("env %s%s: want a positive integer, got %q", EnvPrefix, key, v))
				return
			}
			*dst = n
		}
	}
	// Booleans override when env present and truthy/falsey
	setBool := func(dst *bool, key string) {
		switch strings.ToLower(get(key)) {
		case "1", "true", "yes", "on":
			*dst = true
		case "0", "false", "no", "off":
			*dst = false
		}
	}

	setStr(&cfg.URLsPath, "URLS")
	setStr(&cfg.OutputPath, "OUTPUT")

	if v := get("PAPER"); v != "" {
		p, err := layout.ParsePaper(v)
		errs = append(errs, err)
		if err == nil {
			cfg.Layout.Paper = p
		}
	}
	setInt(&cfg.Layout.Columns, "COLUMNS")
	if v := get("PAGINATION"); v != "" {
		p, err := layout.ParsePagination(v)
		errs = append(errs, err)
		if err == nil {
			cfg.Layout.Pagination = p
		}
	}
	if v := get("IMAGE_LAYOUT"); v != "" {
		m, err := layout.ParseImageLayout(v)
		errs = append(errs, err)
		if err == nil {
			cfg.Layout.ImageLayout = m
		}
	}

	setStr(&cfg.StorageState, "STORAGE_STATE")
	setStr(&cfg.WorkDir, "WORK_DIR")
	setStr(&cfg.Engine, "ENGINE")
	setStr(&cfg.Browser, "BROWSER")
	setStr(&cfg.BrowserBin, "BROWSER_BIN")

	if v := get("TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("env %sTIMEOUT: %w", EnvPrefix, err))
		} else {
			cfg.Timeout = d
		}
	}
	setInt(&cfg.Workers, "WORKERS")
	setInt(&cfg.MediaWorkers, "MEDIA_WORKERS")
	setInt(&cfg.Attempts, "ATTEMPTS")

	setBool(&cfg.Verbose, "VERBOSE")
	setBool(&cfg.KeepTex, "KEEP_TEX")
	setBool(&cfg.Headless, "HEADLESS")
	setBool(&cfg.FailFast, "FAIL_FAST")
	return errors.Join(errs...)
}
