package config

// Application is a deployment unit declared in configuration with
// application.<name>.url and friends. It is installed when the runtime
// starts.
type Application struct {
	Name string `validate:"required"`

	// URL is a location or coordinate understood by the dispatcher.
	URL string `validate:"required"`

	// Type names the handler to use; empty selects by content.
	Type    string
	Profile string

	// Properties holds every other application.<name>.<key> entry.
	Properties map[string]string
}

// Format identifies a configuration file syntax.
type Format string

const (
	FormatProperties Format = "properties"
	FormatJSON       Format = "json"
	FormatYAML       Format = "yaml"
	FormatTOML       Format = "toml"
)
