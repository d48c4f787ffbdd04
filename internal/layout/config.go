package layout

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Paper is the page size.
type Paper string

const (
	PaperA4     Paper = "a4"
	PaperLetter Paper = "letter"
)

// Pagination decides how articles are separated.
type Pagination string

const (
	// Continuous flows every article into one issue without forced breaks.
	Continuous Pagination = "continuous"
	// NewPage starts every article after the first on a new page.
	NewPage Pagination = "newpage"
	// Split produces one issue per article.
	Split Pagination = "split"
)

// ImageLayout decides where an article's images go.
type ImageLayout string

const (
	// Inline keeps images inside the column flow next to the text.
	Inline ImageLayout = "inline"
	// Span places images full width between paragraph groups.
	Span ImageLayout = "span"
	// Appendix moves every image to a trailing section.
	Appendix ImageLayout = "appendix"
)

// ParsePaper accepts a paper name case-insensitively.
func ParsePaper(s string) (Paper, error) {
	switch p := Paper(strings.ToLower(strings.TrimSpace(s))); p {
	case PaperA4, PaperLetter:
		return p, nil
	}
	return "", fmt.Errorf("unknown paper size %q (want a4 or letter)", s)
}

// ParsePagination accepts a pagination mode case-insensitively.
func ParsePagination(s string) (Pagination, error) {
	switch p := Pagination(strings.ToLower(strings.TrimSpace(s))); p {
	case Continuous, NewPage, Split:
		return p, nil
	}
	return "", fmt.Errorf("unknown pagination %q (want continuous, newpage or split)", s)
}

// ParseImageLayout accepts an image layout mode case-insensitively.
func ParseImageLayout(s string) (ImageLayout, error) {
	switch m := ImageLayout(strings.ToLower(strings.TrimSpace(s))); m {
	case Inline, Span, Appendix:
		return m, nil
	}
	return "", fmt.Errorf("unknown image layout %q (want inline, span or appendix)", s)
}

// Config is the immutable layout configuration. Distances are millimetres.
type Config struct {
	Paper          Paper       `yaml:"paper" json:"paper" validate:"oneof=a4 letter"`
	Columns        int         `yaml:"columns" json:"columns" validate:"min=1,max=6"`
	MarginOuter    float64     `yaml:"margin_outer_mm" json:"margin_outer_mm" validate:"gt=0"`
	MarginInner    float64     `yaml:"margin_inner_mm" json:"margin_inner_mm" validate:"gt=0,gtefield=MarginOuter"`
	MarginTop      float64     `yaml:"margin_top_mm" json:"margin_top_mm" validate:"gt=0"`
	MarginBottom   float64     `yaml:"margin_bottom_mm" json:"margin_bottom_mm" validate:"gt=0"`
	ColumnGap      float64     `yaml:"column_gap_mm" json:"column_gap_mm" validate:"gt=0"`
	Pagination     Pagination  `yaml:"pagination" json:"pagination" validate:"oneof=continuous newpage split"`
	ImageLayout    ImageLayout `yaml:"image_layout" json:"image_layout" validate:"oneof=inline span appendix"`
	BlankFirstPage bool        `yaml:"blank_first_page" json:"blank_first_page"`
	IndexPage      bool        `yaml:"index_page" json:"index_page"`
}

// DefaultConfig returns a three-column A4 layout with span images.
func DefaultConfig() Config {
	return Config{
		Paper:        PaperA4,
		Columns:      3,
		MarginOuter:  4,
		MarginInner:  9,
		MarginTop:    10,
		MarginBottom: 10,
		ColumnGap:    4,
		Pagination:   Continuous,
		ImageLayout:  Span,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field and reports all problems at once.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	var errs []error
	for _, fe := range verrs {
		errs = append(errs, fieldError(fe))
	}
	return errors.Join(errs...)
}

func fieldError(fe validator.FieldError) error {
	switch fe.Tag() {
	case "oneof":
		return fmt.Errorf("layout: %s must be one of [%s], got %v", fe.Field(), fe.Param(), fe.Value())
	case "gtefield":
		return fmt.Errorf("layout: %s must be >= %s for a two-sided layout, got %v", fe.Field(), fe.Param(), fe.Value())
	case "gt":
		return fmt.Errorf("layout: %s must be > %s, got %v", fe.Field(), fe.Param(), fe.Value())
	case "min", "max":
		return fmt.Errorf("layout: %s must be within 1..6, got %v", fe.Field(), fe.Value())
	}
	return fmt.Errorf("layout: %s failed %s", fe.Field(), fe.Tag())
}
