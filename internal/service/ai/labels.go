package ai

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Labels maps model class indices to human-readable names. It is immutable after creation.
type Labels struct {
	names []string
}

// NewLabels validates names and wraps them in a Labels table.
func NewLabels(names []string) (*Labels, error) {
	if len(names) == 0 {
		return nil, errors.New("label table is empty")
	}
	out := make([]string, len(names))
	for i, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("label %d is empty", i)
		}
		out[i] = name
	}
	return &Labels{names: out}, nil
}

// LoadLabels reads a label table from disk. YAML files (.yaml, .yml) must carry a
// "names" key holding a list or an index->name mapping; any other file is read as
// one class name per line.
func LoadLabels(path string) (*Labels, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read labels file: %w", err)
	}

	var names []string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		names, err = parseYAMLNames(data)
	default:
		names, err = parseTextNames(data)
	}
	if err != nil {
		return nil, fmt.Errorf("parse labels file %s: %w", path, err)
	}

	return NewLabels(names)
}

// Len returns the number of classes.
func (l *Labels) Len() int {
	return len(l.names)
}

// Name returns the class name for an index. Indices outside the table are
// rendered as their number so a mismatched model never panics a request.
func (l *Labels) Name(classID int) string {
	if classID < 0 || classID >= len(l.names) {
		return strconv.Itoa(classID)
	}
	return l.names[classID]
}

// Names returns a copy of the table in index order.
func (l *Labels) Names() []string {
	out := make([]string, len(l.names))
	copy(out, l.names)
	return out
}

func parseTextNames(data []byte) ([]string, error) {
	var names []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		names = append(names, line)
	}
	return names, scanner.Err()
}

func parseYAMLNames(data []byte) ([]string, error) {
	var doc struct {
		Names yaml.Node `yaml:"names"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	switch doc.Names.Kind {
	case yaml.SequenceNode:
		var names []string
		if err := doc.Names.Decode(&names); err != nil {
			return nil, err
		}
		return names, nil
	case yaml.MappingNode:
		var byIndex map[int]string
		if err := doc.Names.Decode(&byIndex); err != nil {
			return nil, err
		}
		names := make([]string, len(byIndex))
		for i := range names {
			name, ok := byIndex[i]
			if !ok {
				return nil, fmt.Errorf("class indices must be contiguous from 0, missing %d", i)
			}
			names[i] = name
		}
		return names, nil
	case 0:
		return nil, errors.New(`missing "names" key`)
	default:
		return nil, errors.New(`"names" must be a list or a mapping`)
	}
}
