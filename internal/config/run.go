package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Degenerate-event policies.
const (
	PolicySkip = "skip"
	PolicyFlag = "flag"
)

// RunConfig holds the tunable parameters of one processing run. Every field
// is optional; the Get* methods supply defaults for fields left unset, so
// partial files are safe. The same keys are accepted in JSON and YAML.
type RunConfig struct {
	Trees []string `json:"trees,omitempty" yaml:"trees,omitempty"`

	// Parametric smear model
	FitLin  *float64 `json:"fit_lin,omitempty" yaml:"fit_lin,omitempty"`
	FitQuad *float64 `json:"fit_quad,omitempty" yaml:"fit_quad,omitempty"`

	// Reproducibility seeds, re-applied at the start of every tree
	DrawSeed *uint64 `json:"draw_seed,omitempty" yaml:"draw_seed,omitempty"`
	SignSeed *uint64 `json:"sign_seed,omitempty" yaml:"sign_seed,omitempty"`

	// Empirical pool
	PoolTree      *string  `json:"pool_tree,omitempty" yaml:"pool_tree,omitempty"`
	PoolBranch    *string  `json:"pool_branch,omitempty" yaml:"pool_branch,omitempty"`
	PoolFilter    *bool    `json:"pool_filter,omitempty" yaml:"pool_filter,omitempty"`
	PoolFilterMin *float64 `json:"pool_filter_min,omitempty" yaml:"pool_filter_min,omitempty"`
	PoolFilterMax *float64 `json:"pool_filter_max,omitempty" yaml:"pool_filter_max,omitempty"`

	SmearVariants []string `json:"smear_variants,omitempty" yaml:"smear_variants,omitempty"`

	// Variation weights
	DebugWeightCoeff      *float64 `json:"debug_weight_coeff,omitempty" yaml:"debug_weight_coeff,omitempty"`
	DebugWeightConvention *string  `json:"debug_weight_convention,omitempty" yaml:"debug_weight_convention,omitempty"`
	ScaleWeightCoeff      *float64 `json:"scale_weight_coeff,omitempty" yaml:"scale_weight_coeff,omitempty"`
	ScaleWeightConvention *string  `json:"scale_weight_convention,omitempty" yaml:"scale_weight_convention,omitempty"`

	// Degenerate-event handling
	DegeneratePolicy *string  `json:"degenerate_policy,omitempty" yaml:"degenerate_policy,omitempty"`
	Sentinel         *float64 `json:"sentinel,omitempty" yaml:"sentinel,omitempty"`
	MinAbsCosZ       *float64 `json:"min_abs_cos_z,omitempty" yaml:"min_abs_cos_z,omitempty"`
	MinRecoMass      *float64 `json:"min_reco_mass,omitempty" yaml:"min_reco_mass,omitempty"`

	// Diagnostics
	HistogramBins   *int `json:"histogram_bins,omitempty" yaml:"histogram_bins,omitempty"`
	HistogramWarmup *int `json:"histogram_warmup,omitempty" yaml:"histogram_warmup,omitempty"`
}

// EmptyRunConfig returns a RunConfig with all fields unset.
func EmptyRunConfig() *RunConfig {
	return &RunConfig{}
}

// LoadRunConfig loads a RunConfig from a .json, .yaml or .yml file and
// validates it.
func LoadRunConfig(path string) (*RunConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyRunConfig()
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", filepath.Base(cleanPath), err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configured values are usable. Unset fields are
// not checked; their defaults are always valid.
func (c *RunConfig) Validate() error {
	for _, f := range []struct {
		key string
		v   *float64
	}{
		{"fit_lin", c.FitLin},
		{"fit_quad", c.FitQuad},
		{"pool_filter_min", c.PoolFilterMin},
		{"pool_filter_max", c.PoolFilterMax},
		{"debug_weight_coeff", c.DebugWeightCoeff},
		{"scale_weight_coeff", c.ScaleWeightCoeff},
		{"sentinel", c.Sentinel},
		{"min_abs_cos_z", c.MinAbsCosZ},
		{"min_reco_mass", c.MinRecoMass},
	} {
		if f.v != nil && (math.IsNaN(*f.v) || math.IsInf(*f.v, 0)) {
			return fmt.Errorf("%s must be finite, got %v", f.key, *f.v)
		}
	}

	if c.Trees != nil && len(c.Trees) == 0 {
		return fmt.Errorf("trees must not be empty")
	}
	for _, t := range c.Trees {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("trees must not contain empty names")
		}
	}

	if c.GetPoolFilterMin() > c.GetPoolFilterMax() {
		return fmt.Errorf("pool_filter_min (%g) must not exceed pool_filter_max (%g)", c.GetPoolFilterMin(), c.GetPoolFilterMax())
	}

	if c.SmearVariants != nil {
		if len(c.SmearVariants) == 0 {
			return fmt.Errorf("smear_variants must not be empty")
		}
		seen := map[string]bool{}
		for _, v := range c.SmearVariants {
			if v == "" || strings.ContainsAny(v, " /") {
				return fmt.Errorf("invalid smear variant name %q", v)
			}
			if seen[v] {
				return fmt.Errorf("duplicate smear variant %q", v)
			}
			seen[v] = true
		}
	}

	for key, v := range map[string]*string{
		"debug_weight_convention": c.DebugWeightConvention,
		"scale_weight_convention": c.ScaleWeightConvention,
	} {
		if v != nil && *v != "plus-first" && *v != "minus-first" {
			return fmt.Errorf("%s must be plus-first or minus-first, got %q", key, *v)
		}
	}

	if c.DegeneratePolicy != nil && *c.DegeneratePolicy != PolicySkip && *c.DegeneratePolicy != PolicyFlag {
		return fmt.Errorf("degenerate_policy must be %q or %q, got %q", PolicySkip, PolicyFlag, *c.DegeneratePolicy)
	}
	if c.MinAbsCosZ != nil && *c.MinAbsCosZ <= 0 {
		return fmt.Errorf("min_abs_cos_z must be positive, got %g", *c.MinAbsCosZ)
	}
	if c.MinRecoMass != nil && *c.MinRecoMass <= 0 {
		return fmt.Errorf("min_reco_mass must be positive, got %g", *c.MinRecoMass)
	}
	if c.HistogramBins != nil && *c.HistogramBins <= 0 {
		return fmt.Errorf("histogram_bins must be positive, got %d", *c.HistogramBins)
	}
	if c.HistogramWarmup != nil && *c.HistogramWarmup <= 0 {
		return fmt.Errorf("histogram_warmup must be positive, got %d", *c.HistogramWarmup)
	}
	if c.PoolTree != nil && *c.PoolTree == "" {
		return fmt.Errorf("pool_tree must not be empty")
	}
	if c.PoolBranch != nil && *c.PoolBranch == "" {
		return fmt.Errorf("pool_branch must not be empty")
	}
	return nil
}

// GetTrees returns the input tree paths or the default pair.
func (c *RunConfig) GetTrees() []string {
	if len(c.Trees) == 0 {
		return []string{"TupleB0/DecayTree", "TupleBminus/DecayTree"}
	}
	return c.Trees
}

// GetFitLin returns the fit_lin value or the default.
func (c *RunConfig) GetFitLin() float64 {
	if c.FitLin == nil {
		return 0.105
	}
	return *c.FitLin
}

// GetFitQuad returns the fit_quad value or the default.
func (c *RunConfig) GetFitQuad() float64 {
	if c.FitQuad == nil {
		return 6.29
	}
	return *c.FitQuad
}

// GetDrawSeed returns the draw_seed value or the default.
func (c *RunConfig) GetDrawSeed() uint64 {
	if c.DrawSeed == nil {
		return 42
	}
	return *c.DrawSeed
}

// GetSignSeed returns the sign_seed value or the default.
func (c *RunConfig) GetSignSeed() uint64 {
	if c.SignSeed == nil {
		return 4242
	}
	return *c.SignSeed
}

// GetPoolTree returns the pool_tree value or the default.
func (c *RunConfig) GetPoolTree() string {
	if c.PoolTree == nil {
		return "Smear"
	}
	return *c.PoolTree
}

// GetPoolBranch returns the pool_branch value or the default.
func (c *RunConfig) GetPoolBranch() string {
	if c.PoolBranch == nil {
		return "Delta"
	}
	return *c.PoolBranch
}

// GetPoolFilter returns the pool_filter value or the default.
func (c *RunConfig) GetPoolFilter() bool {
	if c.PoolFilter == nil {
		return true
	}
	return *c.PoolFilter
}

// GetPoolFilterMin returns the pool_filter_min value or the default.
func (c *RunConfig) GetPoolFilterMin() float64 {
	if c.PoolFilterMin == nil {
		return -0.25
	}
	return *c.PoolFilterMin
}

// GetPoolFilterMax returns the pool_filter_max value or the default.
func (c *RunConfig) GetPoolFilterMax() float64 {
	if c.PoolFilterMax == nil {
		return 0.25
	}
	return *c.PoolFilterMax
}

// GetSmearVariants returns the smear variant names or the default pair.
func (c *RunConfig) GetSmearVariants() []string {
	if len(c.SmearVariants) == 0 {
		return []string{"pi", "k"}
	}
	return c.SmearVariants
}

// GetDebugWeightCoeff returns the debug_weight_coeff value or the default.
func (c *RunConfig) GetDebugWeightCoeff() float64 {
	if c.DebugWeightCoeff == nil {
		return 0.01
	}
	return *c.DebugWeightCoeff
}

// GetDebugWeightConvention returns the debug_weight_convention value or the default.
func (c *RunConfig) GetDebugWeightConvention() string {
	if c.DebugWeightConvention == nil {
		return "minus-first"
	}
	return *c.DebugWeightConvention
}

// GetScaleWeightCoeff returns the scale_weight_coeff value or the default.
func (c *RunConfig) GetScaleWeightCoeff() float64 {
	if c.ScaleWeightCoeff == nil {
		return 0.074
	}
	return *c.ScaleWeightCoeff
}

// GetScaleWeightConvention returns the scale_weight_convention value or the default.
func (c *RunConfig) GetScaleWeightConvention() string {
	if c.ScaleWeightConvention == nil {
		return "plus-first"
	}
	return *c.ScaleWeightConvention
}

// GetDegeneratePolicy returns the degenerate_policy value or the default.
func (c *RunConfig) GetDegeneratePolicy() string {
	if c.DegeneratePolicy == nil {
		return PolicySkip
	}
	return *c.DegeneratePolicy
}

// GetSentinel returns the sentinel value or the default.
func (c *RunConfig) GetSentinel() float64 {
	if c.Sentinel == nil {
		return -9999
	}
	return *c.Sentinel
}

// GetMinAbsCosZ returns the min_abs_cos_z value or the default.
func (c *RunConfig) GetMinAbsCosZ() float64 {
	if c.MinAbsCosZ == nil {
		return 1e-6
	}
	return *c.MinAbsCosZ
}

// GetMinRecoMass returns the min_reco_mass value (MeV) or the default.
func (c *RunConfig) GetMinRecoMass() float64 {
	if c.MinRecoMass == nil {
		return 1e-3
	}
	return *c.MinRecoMass
}

// GetHistogramBins returns the histogram_bins value or the default.
func (c *RunConfig) GetHistogramBins() int {
	if c.HistogramBins == nil {
		return 60
	}
	return *c.HistogramBins
}

// GetHistogramWarmup returns the histogram_warmup value or the default.
func (c *RunConfig) GetHistogramWarmup() int {
	if c.HistogramWarmup == nil {
		return 10000
	}
	return *c.HistogramWarmup
}

// SetFitLin overrides fit_lin, typically from a command-line flag.
func (c *RunConfig) SetFitLin(v float64) { c.FitLin = &v }

// SetFitQuad overrides fit_quad, typically from a command-line flag.
func (c *RunConfig) SetFitQuad(v float64) { c.FitQuad = &v }

// JSON returns the configuration as stored in the run ledger.
func (c *RunConfig) JSON() string {
	b, err := json.Marshal(c)
	if err != nil {
		return "{}"
	}
	return string(b)
}
