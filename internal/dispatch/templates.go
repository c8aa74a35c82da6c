package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrTemplateLoad marks a template file that could not be read or
// yielded no usable messages. Dispatch refuses to run without a valid
// pool.
var ErrTemplateLoad = errors.New("template load failed")

// DefaultTemplates is the built-in pool used when no template file is
// given.
var DefaultTemplates = []string{
	"hit pinned please and add me to gif groups",
	"please don't skip, hit my pinned and recent please i check",
}

// LoadTemplates reads a message pool from a file, dispatching on
// extension: .yaml/.yml and .json hold a list of strings, .txt holds
// one message per non-empty line. An empty path returns the defaults.
func LoadTemplates(path string) ([]string, error) {
	if path == "" {
		return DefaultTemplates, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTemplateLoad, err)
	}

	var templates []string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &templates); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %v", ErrTemplateLoad, path, err)
		}
	case ".json":
		if err := json.Unmarshal(data, &templates); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %v", ErrTemplateLoad, path, err)
		}
	case ".txt":
		for _, line := range strings.Split(string(data), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				templates = append(templates, line)
			}
		}
	default:
		return nil, fmt.Errorf("%w: unsupported template format %q", ErrTemplateLoad, filepath.Ext(path))
	}

	templates = pruneEmpty(templates)
	if len(templates) == 0 {
		return nil, fmt.Errorf("%w: %s contains no messages", ErrTemplateLoad, path)
	}
	return templates, nil
}

func pruneEmpty(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
