package stowr

import "fmt"

// IndexMode selects which Index backend an Engine uses.
type IndexMode string

const (
	// Auto probes existing state at Open time: Document if none exists,
	// otherwise whichever backend's on-disk file/DB is present.
	Auto IndexMode = "auto"
	// Document forces the single-file, human-readable backend.
	Document IndexMode = "document"
	// Relational forces the embedded SQL backend.
	Relational IndexMode = "relational"
)

// migrationThreshold is the advisory entry count past which a Document
// index SHOULD be migrated to Relational (spec §4.3). Advisory only: the
// Engine never migrates mid-batch, only at Open.
const migrationThreshold = 1000

// Config configures an Engine. Default returns the documented defaults.
// Open replaces zero-valued string and numeric fields with their defaults
// before validating; the two boolean toggles are taken as given, so a
// zero Config runs with deduplication off, and a SimilarityThreshold of
// zero becomes 0.8.
type Config struct {
	// StoragePath is the root directory for the store's on-disk layout.
	StoragePath string

	// IndexMode selects the index backend.
	IndexMode IndexMode

	// CompressionAlgorithm is the codec new Whole/Delta-residual objects
	// are written with.
	CompressionAlgorithm Algorithm

	// CompressionLevel is the codec level. Zero means "use the
	// algorithm's default" (see Default).
	CompressionLevel int

	// Multithread is the worker count for batch operations. Must be >= 1.
	Multithread int

	// EnableDeduplication turns on the dedup probe in the ingest pipeline.
	EnableDeduplication bool

	// EnableDeltaCompression turns on the delta probe in the ingest
	// pipeline.
	EnableDeltaCompression bool

	// SimilarityThreshold is tau in [0,1]; the delta probe only commits a
	// residual when the best candidate's similarity meets or exceeds it.
	SimilarityThreshold float64

	// DeltaAlgorithm selects which delta scheme new Delta objects use.
	DeltaAlgorithm DeltaScheme
}

// Default returns the documented default configuration.
func Default() Config {
	return Config{
		StoragePath:            "./stowr_store",
		IndexMode:              Auto,
		CompressionAlgorithm:   Gzip,
		CompressionLevel:       0, // resolved per-algorithm in normalize
		Multithread:            1,
		EnableDeduplication:    true,
		EnableDeltaCompression: false,
		SimilarityThreshold:    0.8,
		DeltaAlgorithm:         DeltaSimple,
	}
}

// normalize fills zero-valued string and numeric fields with their
// documented defaults; boolean fields are left as they are. It does not
// validate; call validate after.
func (c Config) normalize() Config {
	d := Default()
	if c.StoragePath == "" {
		c.StoragePath = d.StoragePath
	}
	if c.IndexMode == "" {
		c.IndexMode = d.IndexMode
	}
	if c.CompressionAlgorithm == "" {
		c.CompressionAlgorithm = d.CompressionAlgorithm
	}
	if c.CompressionLevel == 0 {
		c.CompressionLevel = defaultLevel(c.CompressionAlgorithm)
	}
	if c.Multithread == 0 {
		c.Multithread = d.Multithread
	}
	if c.SimilarityThreshold == 0 {
		c.SimilarityThreshold = d.SimilarityThreshold
	}
	if c.DeltaAlgorithm == "" {
		c.DeltaAlgorithm = d.DeltaAlgorithm
	}
	return c
}

func defaultLevel(a Algorithm) int {
	switch a {
	case Zstd:
		return 3
	case Lz4:
		return 0
	default:
		return 6
	}
}

// validate checks the invariants spec §6 requires to fail at Open time
// with ConfigError.
func (c Config) validate() error {
	switch c.IndexMode {
	case Auto, Document, Relational:
	default:
		return newErr(KindConfig, "open", "", fmt.Errorf("invalid index_mode %q", c.IndexMode))
	}

	switch c.CompressionAlgorithm {
	case Gzip:
		if c.CompressionLevel < 0 || c.CompressionLevel > 9 {
			return newErr(KindConfig, "open", "", fmt.Errorf("gzip level %d out of range [0,9]", c.CompressionLevel))
		}
	case Zstd:
		if c.CompressionLevel < 1 || c.CompressionLevel > 22 {
			return newErr(KindConfig, "open", "", fmt.Errorf("zstd level %d out of range [1,22]", c.CompressionLevel))
		}
	case Lz4:
		// no level knob
	default:
		return newErr(KindConfig, "open", "", fmt.Errorf("unknown compression_algorithm %q", c.CompressionAlgorithm))
	}

	if c.Multithread < 1 {
		return newErr(KindConfig, "open", "", fmt.Errorf("multithread must be >= 1, got %d", c.Multithread))
	}

	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return newErr(KindConfig, "open", "", fmt.Errorf("similarity_threshold %v out of range [0,1]", c.SimilarityThreshold))
	}

	switch c.DeltaAlgorithm {
	case DeltaSimple, DeltaExtended:
	default:
		return newErr(KindConfig, "open", "", fmt.Errorf("unknown delta_algorithm %q", c.DeltaAlgorithm))
	}

	return nil
}
