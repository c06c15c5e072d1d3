// Package config holds the pipeline configuration. All paths, per-cohort
// policies and the fix-up tables (point fixes, sentinels, tier overrides)
// live here so that no component reads ambient state at run time.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the full pipeline configuration.
type Config struct {
	Paths struct {
		DataDir   string `yaml:"data_dir"`
		RunLedger string `yaml:"run_ledger"`
	} `yaml:"paths"`

	Debug bool `yaml:"debug"`

	// Cohorts maps a cohort name (students, parents) to its input/output
	// files and column layout.
	Cohorts map[string]Cohort `yaml:"cohorts"`

	Crosswalk struct {
		Store         string `yaml:"store"`
		PendingExport string `yaml:"pending_export"`
	} `yaml:"crosswalk"`

	Review struct {
		// BatchSize caps how many labels one review session offers;
		// 0 means the whole queue.
		BatchSize int `yaml:"batch_size"`
	} `yaml:"review"`

	Reference Reference `yaml:"reference"`

	Tiers TierConfig `yaml:"tiers"`
}

// Cohort describes one survey export and how to clean it.
type Cohort struct {
	Responses      string `yaml:"responses"`
	DedupedOutput  string `yaml:"deduped_output"`
	ResolvedOutput string `yaml:"resolved_output"`

	// DedupPolicy is "first" (keep earliest submission) or "last"
	// (keep most recent).
	DedupPolicy string `yaml:"dedup_policy"`

	// Columns maps logical field names to the physical column headers of
	// this cohort's export. Label columns are the free-text answers fed
	// to the crosswalk resolver, in slot order.
	Columns struct {
		ResponseID  string   `yaml:"response_id"`
		SubmittedAt string   `yaml:"submitted_at"`
		Email       string   `yaml:"email"`
		FirstName   string   `yaml:"first_name"`
		LastName    string   `yaml:"last_name"`
		Female      string   `yaml:"female"`
		Labels      []string `yaml:"labels"`
	} `yaml:"columns"`
}

// Reference describes the raw characteristics catalogue and the fix-up
// tables applied while building it.
type Reference struct {
	Catalogue string `yaml:"catalogue"`

	Columns struct {
		Code            string `yaml:"code"`
		BaseCode        string `yaml:"base_code"`
		Name            string `yaml:"name"`
		AltName         string `yaml:"alt_name"`
		Math            string `yaml:"math"`
		Language        string `yaml:"language"`
		ForeignLanguage string `yaml:"foreign_language"`
		Science         string `yaml:"science"`
		FemaleShare     string `yaml:"female_share"`
		Population      string `yaml:"population"`
		FieldCode       string `yaml:"field_code"`
		FieldName       string `yaml:"field_name"`
	} `yaml:"columns"`

	// PointFixes correct known mis-coded catalogue rows by exact name match.
	PointFixes []PointFix `yaml:"point_fixes"`

	// ObsoleteCodes are legacy codes dropped outright.
	ObsoleteCodes []int `yaml:"obsolete_codes"`

	// NewerProfession is appended to the catalogue by copying numeric
	// attributes from an existing occupation.
	NewerProfession struct {
		Code     int    `yaml:"code"`
		Name     string `yaml:"name"`
		CopyFrom string `yaml:"copy_from"`
	} `yaml:"newer_profession"`

	// Sentinels are synthetic negative codes for non-catalogue answers.
	Sentinels []Sentinel `yaml:"sentinels"`

	// NameAliases canonicalize known display-name variants.
	NameAliases map[string]string `yaml:"name_aliases"`
}

// PointFix corrects the code of a catalogue row matched by exact name.
type PointFix struct {
	Name string `yaml:"name"`
	Code int    `yaml:"code"`
}

// Sentinel is a synthetic catalogue row with a negative code.
type Sentinel struct {
	Code int    `yaml:"code"`
	Name string `yaml:"name"`
}

// TierConfig holds the math-requirement tier breakpoints and the manual
// per-code overrides that take precedence over the bucketed value.
type TierConfig struct {
	LowMax    float64        `yaml:"low_max"`
	MediumMax float64        `yaml:"medium_max"`
	Overrides []TierOverride `yaml:"overrides"`
}

// TierOverride forces a tier for a specific code.
type TierOverride struct {
	Code int    `yaml:"code"`
	Tier string `yaml:"tier"`
}

// Default returns the built-in configuration. The sentinel table and tier
// breakpoints mirror the reference cleaning rules; file paths assume the
// standard data directory layout.
func Default() *Config {
	cfg := &Config{
		Cohorts: make(map[string]Cohort),
	}

	cfg.Paths.DataDir = "data"
	cfg.Paths.RunLedger = "data/pipeline_runs.db"

	cfg.Crosswalk.Store = "data/crosswalks/apprenticeships.csv"
	cfg.Crosswalk.PendingExport = "data/crosswalks/pending_review.csv"

	cfg.Reference.Catalogue = "data/raw/apprenticeship_characteristics.csv"
	cfg.Reference.Columns.Code = "labb_code"
	cfg.Reference.Columns.BaseCode = "labb_code_base"
	cfg.Reference.Columns.Name = "occ_name"
	cfg.Reference.Columns.AltName = "occ_name_alt"
	cfg.Reference.Columns.Math = "math_req"
	cfg.Reference.Columns.Language = "lang_req"
	cfg.Reference.Columns.ForeignLanguage = "forlang_req"
	cfg.Reference.Columns.Science = "science_req"
	cfg.Reference.Columns.FemaleShare = "female_share"
	cfg.Reference.Columns.Population = "total_pop"
	cfg.Reference.Columns.FieldCode = "field_code"
	cfg.Reference.Columns.FieldName = "field_name"

	cfg.Reference.Sentinels = []Sentinel{
		{Code: -1, Name: "None"},
		{Code: -2, Name: "Gymnasium"},
		{Code: -3, Name: "Has contract"},
		{Code: -4, Name: "Unknown (1)"},
		{Code: -5, Name: "Unknown (2)"},
		{Code: -6, Name: "Unknown (3)"},
		{Code: -7, Name: "Unknown, no apprenticeship"},
	}

	cfg.Tiers.LowMax = 37.5
	cfg.Tiers.MediumMax = 58.5

	return cfg
}

// Load reads the YAML configuration file at path, layered over the defaults,
// and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	c.Paths.DataDir = GetEnv("PIPELINE_DATA_DIR", c.Paths.DataDir)
	c.Paths.RunLedger = GetEnv("PIPELINE_RUN_LEDGER", c.Paths.RunLedger)
	c.Debug = GetEnvBool("PIPELINE_DEBUG", c.Debug)
	c.Review.BatchSize = GetEnvInt("PIPELINE_REVIEW_BATCH", c.Review.BatchSize)
}

func (c *Config) validate() error {
	for name, cohort := range c.Cohorts {
		switch cohort.DedupPolicy {
		case "first", "last":
		case "":
			return fmt.Errorf("cohort %s: dedup_policy is required (first or last)", name)
		default:
			return fmt.Errorf("cohort %s: unknown dedup_policy %q", name, cohort.DedupPolicy)
		}
		if len(cohort.Columns.Labels) > 4 {
			return fmt.Errorf("cohort %s: at most 4 label columns supported, got %d", name, len(cohort.Columns.Labels))
		}
	}
	for _, o := range c.Tiers.Overrides {
		switch o.Tier {
		case "low", "medium", "high":
		default:
			return fmt.Errorf("tier override for code %d: unknown tier %q", o.Code, o.Tier)
		}
	}
	return nil
}
