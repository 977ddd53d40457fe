package config

import (
	"os"
	"path/filepath"
)

// Well-known property keys.
const (
	KeyCache          = "minho.cache"
	KeyRepositories   = "minho.repositories"
	KeyBundles        = "minho.bundles"
	KeyDeploy         = "minho.deploy"
	KeyDeployInterval = "minho.deploy.interval"
	KeyProcessGrace   = "minho.process.grace"
	KeyMetricsAddr    = "minho.metrics.addr"
	KeyBanner         = "banner"

	// EnvConfig holds inline properties text.
	EnvConfig = "MINHO_CONFIG"

	// EnvConfigFile names a configuration file; its extension selects the loader.
	EnvConfigFile = "MINHO_CONFIG_FILE"

	// DefaultRepository is the remote repository used when none is configured.
	DefaultRepository = "https://repo1.maven.org/maven2"

	applicationPrefix = "application."
)

// DefaultProperties returns the properties every runtime starts from.
func DefaultProperties() map[string]string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}

	return map[string]string{
		KeyCache:          filepath.Join(base, "minho", "repository"),
		KeyRepositories:   DefaultRepository,
		KeyBundles:        filepath.Join(base, "minho", "bundles"),
		KeyDeploy:         "deploy",
		KeyDeployInterval: "500ms",
		KeyProcessGrace:   "10s",
	}
}
