// Package config provides the flat key/value configuration of a minho
// runtime and the services that load it.
//
// # Configuration Service
//
// Service is registered first during bootstrap. It starts from
// DefaultProperties and is filled by the loader services registered after
// it. Every lookup checks the environment first: the key is upper-cased
// with dots replaced by underscores, so minho.cache is overridden by
// MINHO_CACHE.
//
// # Loaders
//
// One loader exists per format. Each reads its default file from the
// configuration directory, or the file named by --config or
// $MINHO_CONFIG_FILE when the extension matches:
//
//   - minho.properties (also inline text from $MINHO_CONFIG)
//   - minho.json
//   - minho.yaml
//   - minho.toml
//
// Nested documents are flattened to dotted keys. A missing default file is
// not an error; the runtime simply keeps its defaults.
//
// # Applications
//
// Deployment units installed at startup are declared as
//
//	application.<name>.url=mvn:org.example/app/1.0/zip
//	application.<name>.type=bundle
//	application.<name>.<property>=<value>
package config
