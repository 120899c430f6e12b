package generation

import (
	"fmt"
	"os"
	"regexp"

	"github.com/fedspending/data-broker/internal/store/model"
	"sigs.k8s.io/yaml"
)

var identifierRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

type ColumnConfig struct {
	// Name is the column read from the table.
	Name string `json:"name"`
	// Header is the CSV header of the column. Defaults to Name.
	Header    string `json:"header,omitempty"`
	MaxLength int    `json:"max_length,omitempty"`
}

type SourceConfig struct {
	Table            string         `json:"table"`
	AgencyColumn     string         `json:"agency_column,omitempty"`
	DateColumn       string         `json:"date_column,omitempty"`
	SubmissionColumn string         `json:"submission_column,omitempty"`
	OrderBy          string         `json:"order_by"`
	Columns          []ColumnConfig `json:"columns"`
}

type SourcesConfig struct {
	Sources map[model.FileType]SourceConfig `json:"sources"`
}

func LoadSourcesConfig(path string) (*SourcesConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading sources file: %w", err)
	}
	return ParseSourcesConfig(data)
}

func ParseSourcesConfig(data []byte) (*SourcesConfig, error) {
	var cfg SourcesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing sources file: %w", err)
	}

	for fileType, source := range cfg.Sources {
		if err := source.validate(fileType); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

func (s SourceConfig) validate(fileType model.FileType) error {
	if fileType.Name() == "" {
		return fmt.Errorf("sources: unknown file type %q", fileType)
	}

	identifiers := map[string]string{
		"table":    s.Table,
		"order_by": s.OrderBy,
	}
	if fileType.IsDateRanged() {
		identifiers["agency_column"] = s.AgencyColumn
		identifiers["date_column"] = s.DateColumn
	} else {
		identifiers["submission_column"] = s.SubmissionColumn
	}
	for field, value := range identifiers {
		if !identifierRegex.MatchString(value) {
			return fmt.Errorf("sources: %s: invalid %s %q", fileType, field, value)
		}
	}

	if len(s.Columns) == 0 {
		return fmt.Errorf("sources: %s: no columns", fileType)
	}
	for _, c := range s.Columns {
		if !identifierRegex.MatchString(c.Name) {
			return fmt.Errorf("sources: %s: invalid column %q", fileType, c.Name)
		}
	}
	return nil
}

func (s SourceConfig) header() []string {
	header := make([]string, 0, len(s.Columns))
	for _, c := range s.Columns {
		if c.Header != "" {
			header = append(header, c.Header)
		} else {
			header = append(header, c.Name)
		}
	}
	return header
}

func (s SourceConfig) columns() []string {
	columns := make([]string, 0, len(s.Columns))
	for _, c := range s.Columns {
		columns = append(columns, c.Name)
	}
	return columns
}
