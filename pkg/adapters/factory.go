package adapters

import (
	"encoding/json"
	"fmt"
)

// New creates an adapter based on kind and generic configuration map.
// This is the central extension point for adding new adapter types.
//
// Supported kinds:
//   - "file": directory walk over fixed-width flow files
//   - "http": JSON API with gjson paths
//
// Returns error if kind is unknown or required fields are missing.
func New(kind string, config map[string]string) (Adapter, error) {
	switch kind {
	case "file":
		return newFile(config)
	case "http":
		return newHTTP(config)
	default:
		return nil, fmt.Errorf("unknown adapter kind: %s (must be file or http)", kind)
	}
}

// newFile creates a directory adapter from generic config.
func newFile(config map[string]string) (Adapter, error) {
	root := config["root"]
	if root == "" {
		return nil, fmt.Errorf("file adapter requires 'root' config")
	}

	return &FileAdapter{
		Root:    root,
		Pattern: config["pattern"],
	}, nil
}

// newHTTP creates an HTTP adapter from generic config.
func newHTTP(config map[string]string) (Adapter, error) {
	url := config["url"]
	if url == "" {
		return nil, fmt.Errorf("http adapter requires 'url' config")
	}

	method := config["method"]
	if method == "" {
		method = "GET"
	}

	var headers map[string]string
	if headersJSON := config["headers"]; headersJSON != "" {
		if err := json.Unmarshal([]byte(headersJSON), &headers); err != nil {
			return nil, fmt.Errorf("invalid 'headers' JSON: %w", err)
		}
	}

	var templateVars map[string]string
	if varsJSON := config["templateVars"]; varsJSON != "" {
		if err := json.Unmarshal([]byte(varsJSON), &templateVars); err != nil {
			return nil, fmt.Errorf("invalid 'templateVars' JSON: %w", err)
		}
	}

	a := &HTTPAdapter{
		URL:          url,
		Method:       method,
		Headers:      headers,
		Body:         config["body"],
		SourcesPath:  config["sourcesPath"],
		NamePath:     config["namePath"],
		RecordsPath:  config["recordsPath"],
		StationPath:  config["stationPath"],
		YearPath:     config["yearPath"],
		FlowsPath:    config["flowsPath"],
		TemplateVars: templateVars,
	}
	if err := a.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("http adapter: %w", err)
	}
	return a, nil
}
