package coordinate

import (
	"regexp"
	"strings"
)

const (
	// Scheme is the optional prefix of a coordinate string.
	Scheme = "mvn:"

	// VersionLatest is used when a coordinate names no version.
	VersionLatest = "LATEST"

	// TypeJar is used when a coordinate names no type.
	TypeJar = "jar"

	repositorySeparator = "!"
	segmentSeparator    = "/"
	snapshotSuffix      = "SNAPSHOT"
)

// snapshotPattern matches timestamped snapshot versions such as
// 1.0-20240131.120000-3 or 1.0-20240131120000-3.
var snapshotPattern = regexp.MustCompile(`^(.*)-([0-9]{8}\.?[0-9]{6})-([0-9]+)$`)

// Coordinate identifies an artifact symbolically. The zero value is not
// valid; use Parse.
type Coordinate struct {
	// Repository overrides the configured repositories when set.
	Repository string
	Group      string
	Artifact   string
	Version    string
	Type       string
	Classifier string
}

// IsCoordinate reports whether location uses the coordinate scheme.
func IsCoordinate(location string) bool {
	return strings.HasPrefix(location, Scheme)
}

// Parse reads [mvn:][repository!]group/artifact[/version[/type[/classifier]]].
// The repository is split off at the last "!". Empty optional segments
// take their defaults.
func Parse(uri string) (Coordinate, error) {
	path := strings.TrimPrefix(uri, Scheme)

	if strings.HasPrefix(path, repositorySeparator) || strings.HasSuffix(path, repositorySeparator) {
		return Coordinate{}, malformed(uri, "must not start or end with "+repositorySeparator)
	}

	var c Coordinate
	if pos := strings.LastIndex(path, repositorySeparator); pos >= 0 {
		c.Repository = path[:pos]
		path = path[pos+1:]
		if strings.TrimSpace(c.Repository) == "" {
			return Coordinate{}, malformed(uri, "empty repository")
		}
	}

	segments := strings.Split(path, segmentSeparator)
	if len(segments) < 2 {
		return Coordinate{}, malformed(uri, "group and artifact are required")
	}
	if len(segments) > 5 {
		return Coordinate{}, malformed(uri, "too many segments")
	}

	c.Group = strings.TrimSpace(segments[0])
	if c.Group == "" {
		return Coordinate{}, malformed(uri, "empty group")
	}
	c.Artifact = strings.TrimSpace(segments[1])
	if c.Artifact == "" {
		return Coordinate{}, malformed(uri, "empty artifact")
	}

	c.Version = segmentOr(segments, 2, VersionLatest)
	c.Type = segmentOr(segments, 3, TypeJar)
	c.Classifier = segmentOr(segments, 4, "")

	for _, s := range []string{c.Group, c.Artifact, c.Version, c.Type, c.Classifier} {
		if strings.Contains(s, "..") || strings.ContainsAny(s, `\`) {
			return Coordinate{}, malformed(uri, "segment "+s+" escapes the repository layout")
		}
	}

	return c, nil
}

func segmentOr(segments []string, i int, def string) string {
	if i < len(segments) {
		if s := strings.TrimSpace(segments[i]); s != "" {
			return s
		}
	}
	return def
}

// String renders c back to its coordinate form, omitting the defaults
// that Parse would restore.
func (c Coordinate) String() string {
	var b strings.Builder
	b.WriteString(Scheme)
	if c.Repository != "" {
		b.WriteString(c.Repository)
		b.WriteString(repositorySeparator)
	}
	b.WriteString(c.Group + segmentSeparator + c.Artifact + segmentSeparator + c.Version)
	if c.Type != TypeJar || c.Classifier != "" {
		b.WriteString(segmentSeparator + c.Type)
	}
	if c.Classifier != "" {
		b.WriteString(segmentSeparator + c.Classifier)
	}
	return b.String()
}

// BaseVersion returns the version used for the directory segment: a
// timestamped snapshot maps to <base>-SNAPSHOT, anything else is unchanged.
func (c Coordinate) BaseVersion() string {
	if m := snapshotPattern.FindStringSubmatch(c.Version); m != nil {
		return m[1] + "-" + snapshotSuffix
	}
	return c.Version
}

// Dir returns the canonical directory, group/with/slashes/artifact/version.
func (c Coordinate) Dir() string {
	return strings.ReplaceAll(c.Group, ".", segmentSeparator) +
		segmentSeparator + c.Artifact +
		segmentSeparator + c.BaseVersion()
}

// FileName returns artifact-version[-classifier].type.
func (c Coordinate) FileName() string {
	return c.Artifact + "-" + c.Version + c.classifierSuffix() + "." + c.Type
}

// VersionlessFileName returns artifact[-classifier].type.
func (c Coordinate) VersionlessFileName() string {
	return c.Artifact + c.classifierSuffix() + "." + c.Type
}

func (c Coordinate) classifierSuffix() string {
	if c.Classifier == "" {
		return ""
	}
	return "-" + c.Classifier
}

// Path returns the canonical relative path of the artifact:
// group/with/slashes/artifact/version/artifact-version[-classifier].type.
func (c Coordinate) Path() string {
	return c.Dir() + segmentSeparator + c.FileName()
}

// VersionlessPath is Path with the version-less file name.
func (c Coordinate) VersionlessPath() string {
	return c.Dir() + segmentSeparator + c.VersionlessFileName()
}

// Location joins the repository override, if any, with Path. A file:
// repository yields a plain filesystem path.
func (c Coordinate) Location() string {
	if c.Repository == "" {
		return c.Path()
	}
	return strings.TrimSuffix(StripFileScheme(c.Repository), segmentSeparator) + segmentSeparator + c.Path()
}

// StripFileScheme removes a leading file: or file:// from location.
func StripFileScheme(location string) string {
	if rest, ok := strings.CutPrefix(location, "file://"); ok {
		return rest
	}
	return strings.TrimPrefix(location, "file:")
}

// PathFromCoordinate parses uri and returns its Location. Strings that do
// not use the coordinate scheme are returned unchanged.
func PathFromCoordinate(uri string) (string, error) {
	if !IsCoordinate(uri) {
		return uri, nil
	}
	c, err := Parse(uri)
	if err != nil {
		return "", err
	}
	return c.Location(), nil
}

// FromPath maps a canonical repository path back to a coordinate. It
// returns false when path does not follow the layout.
func FromPath(path string) (Coordinate, bool) {
	p := strings.Split(strings.Trim(path, segmentSeparator), segmentSeparator)
	if len(p) < 4 {
		return Coordinate{}, false
	}

	file := p[len(p)-1]
	version := p[len(p)-2]
	artifact := p[len(p)-3]
	prefix := artifact + "-" + version

	dot := strings.LastIndex(file, ".")
	if !strings.HasPrefix(file, prefix) || dot < len(prefix) {
		return Coordinate{}, false
	}

	c := Coordinate{
		Group:    strings.Join(p[:len(p)-3], "."),
		Artifact: artifact,
		Version:  version,
		Type:     file[dot+1:],
	}
	if rest := file[len(prefix):dot]; rest != "" {
		if !strings.HasPrefix(rest, "-") {
			return Coordinate{}, false
		}
		c.Classifier = rest[1:]
	}
	return c, c.Type != ""
}
