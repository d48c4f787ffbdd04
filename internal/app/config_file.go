package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/hyperifyio/gomag/internal/layout"
)

// FileConfig represents the single-file configuration schema.
// Nested sections map naturally to flags and env.
type FileConfig struct {
	URLs   string `yaml:"urls" json:"urls"`
	Output string `yaml:"output" json:"output"`

	Layout struct {
		Paper   string `yaml:"paper" json:"paper"`
		Columns int    `yaml:"columns" json:"columns"`
		Margins struct {
			Outer  float64 `yaml:"outer" json:"outer"`
			Inner  float64 `yaml:"inner" json:"inner"`
			Top    float64 `yaml:"top" json:"top"`
			Bottom float64 `yaml:"bottom" json:"bottom"`
		} `yaml:"margins" json:"margins"`
		ColumnGap      float64 `yaml:"columnGap" json:"columnGap"`
		Pagination     string  `yaml:"pagination" json:"pagination"`
		ImageLayout    string  `yaml:"imageLayout" json:"imageLayout"`
		BlankFirstPage *bool   `yaml:"blankFirstPage" json:"blankFirstPage"`
		IndexPage      *bool   `yaml:"indexPage" json:"indexPage"`
	} `yaml:"layout" json:"layout"`

	Session struct {
		StorageState string `yaml:"storageState" json:"storageState"`
	} `yaml:"session" json:"session"`

	Browser struct {
		Driver   string `yaml:"driver" json:"driver"`
		Bin      string `yaml:"bin" json:"bin"`
		Headless *bool  `yaml:"headless" json:"headless"`
	} `yaml:"browser" json:"browser"`

	Extract struct {
		Timeout  string `yaml:"timeout" json:"timeout"`
		Attempts int    `yaml:"attempts" json:"attempts"`
		Workers  int    `yaml:"workers" json:"workers"`
		FailFast *bool  `yaml:"failFast" json:"failFast"`
	} `yaml:"extract" json:"extract"`

	Media struct {
		Workers int `yaml:"workers" json:"workers"`
	} `yaml:"media" json:"media"`

	Compile struct {
		Engine  string `yaml:"engine" json:"engine"`
		WorkDir string `yaml:"workDir" json:"workDir"`
		KeepTex *bool  `yaml:"keepTex" json:"keepTex"`
	} `yaml:"compile" json:"compile"`

	Verbose bool `yaml:"verbose" json:"verbose"`
}

// LoadConfigFile reads YAML or JSON into FileConfig.
func LoadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse json: %w", err)
		}
	default:
		// Try YAML then JSON
		if err := yaml.Unmarshal(b, &fc); err != nil {
			if jerr := json.Unmarshal(b, &fc); jerr != nil {
				return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	return fc, nil
}

// ApplyFileConfig overlays every value the file sets onto cfg. It runs before
// the env and flag layers, which may override it in turn.
func ApplyFileConfig(cfg *Config, fc FileConfig) error {
	if cfg == nil {
		return nil
	}
	var errs []error
	setStr := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, v int) {
		if v > 0 {
			*dst = v
		}
	}
	setMM := func(dst *float64, v float64) {
		if v > 0 {
			*dst = v
		}
	}
	setBool := func(dst *bool, v *bool) {
		if v != nil {
			*dst = *v
		}
	}

	setStr(&cfg.URLsPath, fc.URLs)
	setStr(&cfg.OutputPath, fc.Output)

	l := &cfg.Layout
	if fc.Layout.Paper != "" {
		p, err := layout.ParsePaper(fc.Layout.Paper)
		errs = append(errs, err)
		if err == nil {
			l.Paper = p
		}
	}
	setInt(&l.Columns, fc.Layout.Columns)
	setMM(&l.MarginOuter, fc.Layout.Margins.Outer)
	setMM(&l.MarginInner, fc.Layout.Margins.Inner)
	setMM(&l.MarginTop, fc.Layout.Margins.Top)
	setMM(&l.MarginBottom, fc.Layout.Margins.Bottom)
	setMM(&l.ColumnGap, fc.Layout.ColumnGap)
	if fc.Layout.Pagination != "" {
		p, err := layout.ParsePagination(fc.Layout.Pagination)
		errs = append(errs, err)
		if err == nil {
			l.Pagination = p
		}
	}
	if fc.Layout.ImageLayout != "" {
		m, err := layout.ParseImageLayout(fc.Layout.ImageLayout)
		errs = append(errs, err)
		if err == nil {
			l.ImageLayout = m
		}
	}
	setBool(&l.BlankFirstPage, fc.Layout.BlankFirstPage)
	setBool(&l.IndexPage, fc.Layout.IndexPage)

	setStr(&cfg.StorageState, fc.Session.StorageState)
	setStr(&cfg.Browser, fc.Browser.Driver)
	setStr(&cfg.BrowserBin, fc.Browser.Bin)
	setBool(&cfg.Headless, fc.Browser.Headless)

	if fc.Extract.Timeout != "" {
		d, err := time.ParseDuration(fc.Extract.Timeout)
		if err != nil {
			errs = append(errs, fmt.Errorf("config file: extract.timeout: %w", err))
		} else {
			cfg.Timeout = d
		}
	}
	setInt(&cfg.Attempts, fc.Extract.Attempts)
	setInt(&cfg.Workers, fc.Extract.Workers)
	setBool(&cfg.FailFast, fc.Extract.FailFast)
	setInt(&cfg.MediaWorkers, fc.Media.Workers)

	setStr(&cfg.Engine, fc.Compile.Engine)
	setStr(&cfg.WorkDir, fc.Compile.WorkDir)
	setBool(&cfg.KeepTex, fc.Compile.KeepTex)

	if fc.Verbose {
		cfg.Verbose = true
	}
	return errors.Join(errs...)
}
