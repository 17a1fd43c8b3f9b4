package contracts

import (
	"fmt"
	"runtime"
)

type OutputFormat string

const (
	FormatPNG  OutputFormat = "png"
	FormatTIFF OutputFormat = "tiff"
)

// CompositeMode selects where the flattened pixels come from.
type CompositeMode string

const (
	// CompositeAuto uses the merged image data unless the document marks it
	// as not real, then flattens the layers.
	CompositeAuto   CompositeMode = "auto"
	CompositeMerged CompositeMode = "merged"
	CompositeLayers CompositeMode = "layers"
)

type PNGCompression string

const (
	PNGCompressionDefault PNGCompression = "default"
	PNGCompressionNone    PNGCompression = "none"
	PNGCompressionSpeed   PNGCompression = "speed"
	PNGCompressionBest    PNGCompression = "best"
)

// InputFlags is the resolved configuration for a run, filled from flags,
// environment and config file.
type InputFlags struct {
	Path            string         `mapstructure:"path" yaml:"path"`
	Workers         int            `mapstructure:"workers" yaml:"workers"`
	Format          OutputFormat   `mapstructure:"format" yaml:"format"`
	Composite       CompositeMode  `mapstructure:"composite" yaml:"composite"`
	PNGCompression  PNGCompression `mapstructure:"png_compression" yaml:"png_compression"`
	EmbedResolution bool           `mapstructure:"embed_resolution" yaml:"embed_resolution"`
	Report          string         `mapstructure:"report" yaml:"report"`
}

// DefaultWorkers leaves one CPU free for the rest of the system.
func DefaultWorkers() int {
	return max(runtime.NumCPU()-1, 1)
}

func DefaultInputFlags() InputFlags {
	return InputFlags{
		Path:            ".",
		Workers:         DefaultWorkers(),
		Format:          FormatPNG,
		Composite:       CompositeAuto,
		PNGCompression:  PNGCompressionDefault,
		EmbedResolution: true,
	}
}

func (f InputFlags) Validate() error {
	if f.Path == "" {
		return fmt.Errorf("path must not be empty")
	}
	if f.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", f.Workers)
	}
	switch f.Format {
	case FormatPNG, FormatTIFF:
	default:
		return fmt.Errorf("unknown format %q (want png or tiff)", f.Format)
	}
	switch f.Composite {
	case CompositeAuto, CompositeMerged, CompositeLayers:
	default:
		return fmt.Errorf("unknown composite mode %q (want auto, merged or layers)", f.Composite)
	}
	switch f.PNGCompression {
	case PNGCompressionDefault, PNGCompressionNone, PNGCompressionSpeed, PNGCompressionBest:
	default:
		return fmt.Errorf("unknown png compression %q", f.PNGCompression)
	}
	return nil
}
