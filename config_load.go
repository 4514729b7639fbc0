package stowr

import (
	"os"
	"strconv"
)

// Load builds a Config from environment variables, falling back to
// Default's values for anything unset — the same getEnv-with-fallback
// idiom the teacher's own config loader uses. The core Engine itself
// never reads the environment; this is a convenience for CLI-style
// hosts that want one.
func Load() Config {
	d := Default()
	return Config{
		StoragePath:            getEnv("STOWR_STORAGE_PATH", d.StoragePath),
		IndexMode:              IndexMode(getEnv("STOWR_INDEX_MODE", string(d.IndexMode))),
		CompressionAlgorithm:   Algorithm(getEnv("STOWR_COMPRESSION_ALGORITHM", string(d.CompressionAlgorithm))),
		CompressionLevel:       getEnvInt("STOWR_COMPRESSION_LEVEL", d.CompressionLevel),
		Multithread:            getEnvInt("STOWR_MULTITHREAD", d.Multithread),
		EnableDeduplication:    getEnvBool("STOWR_ENABLE_DEDUPLICATION", d.EnableDeduplication),
		EnableDeltaCompression: getEnvBool("STOWR_ENABLE_DELTA_COMPRESSION", d.EnableDeltaCompression),
		SimilarityThreshold:    getEnvFloat("STOWR_SIMILARITY_THRESHOLD", d.SimilarityThreshold),
		DeltaAlgorithm:         DeltaScheme(getEnv("STOWR_DELTA_ALGORITHM", string(d.DeltaAlgorithm))),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
