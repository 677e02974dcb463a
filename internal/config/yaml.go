package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

func isYAMLPath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// yamlToJSON re-encodes a YAML document as JSON so both formats go through
// the same strict decoder. A second document in the stream is an error.
func yamlToJSON(data []byte) ([]byte, error) {
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	var doc any
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return []byte("{}"), nil
		}
		return nil, fmt.Errorf("yaml: %w", err)
	}
	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		if err == nil {
			return nil, errors.New("yaml: multiple documents")
		}
		return nil, fmt.Errorf("yaml: %w", err)
	}

	v, err := stringKeys(doc)
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// stringKeys rewrites YAML maps so encoding/json accepts them. Only scalar
// keys are allowed.
func stringKeys(in any) (any, error) {
	switch x := in.(type) {
	case map[string]any:
		for k, v := range x {
			nv, err := stringKeys(v)
			if err != nil {
				return nil, err
			}
			x[k] = nv
		}
		return x, nil
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			switch k.(type) {
			case map[any]any, map[string]any, []any:
				return nil, fmt.Errorf("yaml: non-scalar map key %v", k)
			}
			nv, err := stringKeys(v)
			if err != nil {
				return nil, err
			}
			m[fmt.Sprint(k)] = nv
		}
		return m, nil
	case []any:
		for i := range x {
			nv, err := stringKeys(x[i])
			if err != nil {
				return nil, err
			}
			x[i] = nv
		}
		return x, nil
	default:
		return in, nil
	}
}
