package bundle

import (
	"archive/zip"
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ManifestPath is the location of the manifest inside an archive.
const ManifestPath = "META-INF/MANIFEST.MF"

// Manifest headers used by the handler.
const (
	HeaderSymbolicName = "Bundle-SymbolicName"
	HeaderVersion      = "Bundle-Version"
	HeaderName         = "Bundle-Name"
)

// ParseManifest reads "Name: value" headers. A line starting with a single
// space continues the previous value.
func ParseManifest(r io.Reader) (map[string]string, error) {
	headers := make(map[string]string)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var last string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, " ") {
			if last == "" {
				return nil, fmt.Errorf("continuation line without header: %q", line)
			}
			headers[last] += line[1:]
			continue
		}

		name, value, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid manifest line: %q", line)
		}
		last = strings.TrimSpace(name)
		headers[last] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return headers, nil
}

// readManifest returns the manifest headers of the archive at path.
func readManifest(path string) (map[string]string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	return manifestFromZip(&zr.Reader)
}

func manifestFromZip(zr *zip.Reader) (map[string]string, error) {
	for _, f := range zr.File {
		if f.Name != ManifestPath {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return ParseManifest(rc)
	}
	return nil, fmt.Errorf("%s not found", ManifestPath)
}

// symbolicName strips directives such as ";singleton:=true".
func symbolicName(headers map[string]string) string {
	name, _, _ := strings.Cut(headers[HeaderSymbolicName], ";")
	return strings.TrimSpace(name)
}
