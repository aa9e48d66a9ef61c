// Package config loads the YAML run configuration of the pipeline.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/dd0wney/skyfactory/pkg/validation"
)

// Config is the full run configuration. Store directories are resolved
// relative to the configuration file.
type Config struct {
	// Archive is the master store every derived dataset is written to
	Archive string `yaml:"archive" validate:"required"`

	LogLevel     string `yaml:"log_level" validate:"omitempty,oneof=debug info warn error DEBUG INFO WARN ERROR"`
	LogFormat    string `yaml:"log_format" validate:"omitempty,oneof=json text"`
	Compression  string `yaml:"compression" validate:"omitempty,oneof=none snappy zstd"`
	CacheColumns int    `yaml:"cache_columns"`

	// Seed fixes the random stream; 0 seeds from the clock
	Seed uint64 `yaml:"seed"`

	// VerifyMatches counts match index entries that point at a different ID
	VerifyMatches bool `yaml:"verify_matches"`

	// MetricsFile receives the prometheus textfile; defaults to <archive>.prom
	MetricsFile string `yaml:"metrics_file"`

	Pixelization  Pixelization  `yaml:"pixelization"`
	Gold          Gold          `yaml:"gold"`
	Companions    []Companion   `yaml:"companions" validate:"dive"`
	Maps          Source        `yaml:"maps"`
	Clusters      Clusters      `yaml:"clusters"`
	Selection     Selection     `yaml:"selection"`
	DNF           *DNF          `yaml:"dnf"`
	MaglimRandoms MaglimRandoms `yaml:"maglim_randoms"`
	ShapeNoise    ShapeNoise    `yaml:"shape_noise"`
	Regions       Regions       `yaml:"regions"`
}

// Pixelization fixes the two resolutions every stage works at.
type Pixelization struct {
	SortNside int64 `yaml:"sort_nside" validate:"nside"`
	MaskNside int64 `yaml:"mask_nside" validate:"nside"`
}

// Source names a group inside a store and where the archive links it.
type Source struct {
	Store string `yaml:"store" validate:"required"`
	Group string `yaml:"group" validate:"required,dspath"`
	Link  string `yaml:"link" validate:"omitempty,dspath"`
}

// Map is a partial sky map stored as a pixel column and a value column.
type Map struct {
	Store       string `yaml:"store"`
	Group       string `yaml:"group" validate:"omitempty,dspath"`
	PixelColumn string `yaml:"pixel_column"`
	ValueColumn string `yaml:"value_column"`
	Ordering    string `yaml:"ordering" validate:"omitempty,oneof=nest nested ring"`
}

// Gold is the primary object catalog.
type Gold struct {
	Store       string  `yaml:"store" validate:"required"`
	Group       string  `yaml:"group" validate:"required,dspath"`
	Link        string  `yaml:"link" validate:"required,dspath"`
	IDColumn    string  `yaml:"id_column" validate:"required"`
	PixelColumn string  `yaml:"pixel_column" validate:"required"`
	Footprint   Map     `yaml:"footprint_map"`
	GoodValue   float64 `yaml:"good_value"`
	MaskGroup   string  `yaml:"mask_group" validate:"required,dspath"`
}

// Companion kinds.
const (
	KindShape  = "shape"
	KindPhotoZ = "photoz"
)

// Companion is a catalog row-aligned with gold.
type Companion struct {
	Name     string `yaml:"name" validate:"required,dspath"`
	Kind     string `yaml:"kind" validate:"required,oneof=shape photoz"`
	Store    string `yaml:"store" validate:"required"`
	Group    string `yaml:"group" validate:"required,dspath"`
	Link     string `yaml:"link" validate:"required,dspath"`
	IDColumn string `yaml:"id_column"`
}

// RedmagicSample names the source groups of one redMaGiC sample.
type RedmagicSample struct {
	Name    string `yaml:"name" validate:"required,dspath"`
	Catalog string `yaml:"catalog" validate:"required,dspath"`
	Mask    string `yaml:"mask" validate:"required,dspath"`
	Randoms string `yaml:"randoms" validate:"required,dspath"`
}

// RedmapperSample names the source groups of one redMaPPer catalog.
type RedmapperSample struct {
	Name    string `yaml:"name" validate:"required,dspath"`
	Catalog string `yaml:"catalog" validate:"required,dspath"`
	Randoms string `yaml:"randoms" validate:"omitempty,dspath"`
}

// CombinedBin takes the [Lo, Hi) slice of one sample; Hi is also the depth
// its mask must reach.
type CombinedBin struct {
	Sample string  `yaml:"sample" validate:"required"`
	Lo     float64 `yaml:"lo"`
	Hi     float64 `yaml:"hi"`
}

// Combined describes the merged redMaGiC sample.
type Combined struct {
	Label    string        `yaml:"label" validate:"required,dspath"`
	Bins     []CombinedBin `yaml:"bins" validate:"required,min=1,dive"`
	Zlum     float64       `yaml:"zlum"`
	Fracgood float64       `yaml:"fracgood" validate:"gte=0,lte=1"`
}

// Clusters configures the cluster store built from redMaGiC and redMaPPer.
type Clusters struct {
	Store        string            `yaml:"store" validate:"required"`
	Source       string            `yaml:"source" validate:"required"`
	Redmagic     []RedmagicSample  `yaml:"redmagic" validate:"dive"`
	Redmapper    []RedmapperSample `yaml:"redmapper" validate:"dive"`
	Combined     *Combined         `yaml:"combined"`
	Renames      map[string]string `yaml:"renames"`
	MaskOrdering string            `yaml:"mask_ordering" validate:"omitempty,oneof=nest nested ring"`
}

// ShapeSelection is the default weak-lensing source selection.
type ShapeSelection struct {
	// XOpt holds the magnitude intercept, slope and size ratio
	XOpt      []float64 `yaml:"x_opt" validate:"len=3"`
	MaxMagErr float64   `yaml:"max_mag_err" validate:"gt=0"`
	PSFPixels string    `yaml:"psf_pixels" validate:"required,dspath"`
	PSFSize   string    `yaml:"psf_size" validate:"required,dspath"`
	Redshift  string    `yaml:"redshift" validate:"required,dspath"`
}

// MaglimSelection is the magnitude-limited lens selection.
type MaglimSelection struct {
	// XOpt holds the slope and intercept of the redshift dependent limit
	XOpt      []float64 `yaml:"x_opt" validate:"len=2"`
	MagMin    float64   `yaml:"mag_min"`
	MagMax    float64   `yaml:"mag_max"`
	MaxMagErr float64   `yaml:"max_mag_err" validate:"gt=0"`
	Redshift  string    `yaml:"redshift" validate:"omitempty,dspath"`
}

// Selection groups the derived object selections.
type Selection struct {
	Shape  ShapeSelection  `yaml:"shape"`
	Maglim MaglimSelection `yaml:"maglim"`
}

// DNF is an optional photo-z catalog placed into gold order by ID.
type DNF struct {
	Store    string `yaml:"store" validate:"required"`
	Group    string `yaml:"group" validate:"required,dspath"`
	IDColumn string `yaml:"id_column" validate:"required"`
}

// MaglimRandoms configures the randoms drawn for the maglim sample.
type MaglimRandoms struct {
	DepthPixels string  `yaml:"depth_pixels" validate:"required,dspath"`
	Depth       string  `yaml:"depth" validate:"required,dspath"`
	ZmeanMax    float64 `yaml:"zmean_max" validate:"gt=0"`
	Zmean       string  `yaml:"zmean" validate:"required,dspath"`
	Redshift    string  `yaml:"redshift" validate:"required,dspath"`
	Multiplier  int     `yaml:"multiplier" validate:"min=1"`
}

// ShapeNoise configures noise matching; empty ZBins disables the stage.
type ShapeNoise struct {
	ZBins      []float64 `yaml:"zbins"`
	SigmaEData []float64 `yaml:"sigma_e_data"`
	Zmean      string    `yaml:"zmean" validate:"omitempty,dspath"`
}

// Regions configures jackknife region labels.
type Regions struct {
	Centers  string   `yaml:"centers"`
	Group    string   `yaml:"group" validate:"omitempty,dspath"`
	Nside    int64    `yaml:"nside" validate:"omitempty,nside"`
	Catalogs []string `yaml:"catalogs" validate:"dive,dspath"`
}

// Default returns a configuration with every optional field set to the
// value the pipeline was designed around.
func Default() *Config {
	return &Config{
		LogLevel:     "info",
		LogFormat:    "json",
		Compression:  "snappy",
		CacheColumns: 64,
		Pixelization: Pixelization{SortNside: 16384, MaskNside: 4096},
		Gold: Gold{
			Group:       "catalog/gold",
			Link:        "catalog/gold",
			IDColumn:    "coadd_object_id",
			PixelColumn: "hpix_16384",
			Footprint:   Map{PixelColumn: "hpix", ValueColumn: "signal", Ordering: "nest"},
			GoodValue:   1,
			MaskGroup:   "masks/gold",
		},
		Clusters: Clusters{
			Renames:      map[string]string{"coadd_objects_id": "coadd_object_id"},
			MaskOrdering: "ring",
		},
		Selection: Selection{
			Shape: ShapeSelection{
				MaxMagErr: 0.25,
				PSFPixels: "maps/hpix",
				PSFSize:   "maps/i/fwhm",
				Redshift:  "catalog/bpz/unsheared/z",
			},
			Maglim: MaglimSelection{MagMin: 17.5, MagMax: 23, MaxMagErr: 0.1},
		},
		MaglimRandoms: MaglimRandoms{
			DepthPixels: "maps/buzzard/hpix",
			Depth:       "maps/buzzard/i/sof_depth",
			ZmeanMax:    1.05,
			Multiplier:  20,
		},
		ShapeNoise: ShapeNoise{Zmean: "catalog/bpz/unsheared/zmean_sof"},
		Regions: Regions{
			Group: "regions/centers",
			Nside: 512,
		},
	}
}

// Load reads, resolves and validates the configuration at path. LOG_LEVEL
// in the environment overrides log_level.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		cfg.LogLevel = lvl
	}
	cfg.resolvePaths(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults without validating.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.fillPhotoZ()
	return cfg, nil
}

// fillPhotoZ points unset maglim redshift columns at DNF when it is
// configured and at BPZ otherwise.
func (c *Config) fillPhotoZ() {
	zmean, z := "catalog/bpz/unsheared/zmean_sof", "catalog/bpz/unsheared/z"
	if c.DNF != nil {
		zmean, z = "catalog/dnf/unsheared/z_mean", "catalog/dnf/unsheared/z_mc"
	}
	c.Selection.Maglim.Redshift = validation.DefaultOr(c.Selection.Maglim.Redshift, z)
	c.MaglimRandoms.Redshift = validation.DefaultOr(c.MaglimRandoms.Redshift, z)
	c.MaglimRandoms.Zmean = validation.DefaultOr(c.MaglimRandoms.Zmean, zmean)
}

func (c *Config) resolvePaths(base string) {
	abs := func(p *string) {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
	abs(&c.Archive)
	abs(&c.MetricsFile)
	abs(&c.Gold.Store)
	if c.Gold.Footprint.Store == "" {
		c.Gold.Footprint.Store = c.Maps.Store
	}
	abs(&c.Gold.Footprint.Store)
	abs(&c.Maps.Store)
	abs(&c.Clusters.Store)
	abs(&c.Clusters.Source)
	abs(&c.Regions.Centers)
	for i := range c.Companions {
		abs(&c.Companions[i].Store)
	}
	if c.DNF != nil {
		abs(&c.DNF.Store)
	}
	if c.MetricsFile == "" && c.Archive != "" {
		c.MetricsFile = filepath.Clean(c.Archive) + ".prom"
	}
}
