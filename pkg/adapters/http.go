package adapters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/tidwall/gjson"

	"github.com/HatiCode/analogflow/pkg/flows"
)

// HTTPAdapter calls a REST endpoint and extracts flow sources from its JSON
// response using gjson path expressions.
//
// It supports:
//   - Configurable HTTP method (GET, POST, etc.)
//   - Template-based request body and headers with custom variables
//   - gjson paths for the source list and for every record field
//
// With the default paths the response is expected to look like:
//
//	{
//	  "sources": [
//	    {
//	      "name": "VAZOES-AVG",
//	      "records": [
//	        {"station": 6, "year": 2020, "flows": [812, 1020, ...]}
//	      ]
//	    }
//	  ]
//	}
type HTTPAdapter struct {
	// URL is the endpoint to call (required)
	URL string

	// Method is the HTTP method (GET, POST, etc.). Defaults to GET if empty.
	Method string

	// Headers are custom HTTP headers to include in the request.
	// Values can use template variables like {{.Token}}.
	Headers map[string]string

	// Body is the request body template (for POST/PUT).
	Body string

	// SourcesPath selects the array of sources. Defaults to "sources".
	SourcesPath string

	// NamePath and RecordsPath are evaluated on each source element.
	// Defaults: "name" and "records".
	NamePath    string
	RecordsPath string

	// StationPath, YearPath and FlowsPath are evaluated on each record.
	// Defaults: "station", "year" and "flows". FlowsPath must yield an
	// array of twelve numbers.
	StationPath string
	YearPath    string
	FlowsPath   string

	// HTTPClient is optional; if nil a default client with timeout is used.
	HTTPClient *http.Client

	// TemplateVars are custom variables available in Body and Headers templates.
	// Use this to pass tokens, API keys, etc.
	TemplateVars map[string]string
}

func (h *HTTPAdapter) Name() string { return "http" }

// Collect implements Adapter. Records are returned in station then year order
// regardless of the order in the response.
func (h *HTTPAdapter) Collect(ctx context.Context) ([]Source, error) {
	if h.URL == "" {
		return nil, errors.New("http adapter: URL is required")
	}

	templateData := map[string]any{
		"Now": time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range h.TemplateVars {
		templateData[k] = v
	}

	method := h.Method
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	if h.Body != "" {
		renderedBody, err := renderTemplate(h.Body, templateData)
		if err != nil {
			return nil, fmt.Errorf("render body template: %w", err)
		}
		bodyReader = bytes.NewBufferString(renderedBody)
	}

	cli := h.HTTPClient
	if cli == nil {
		cli = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, method, h.URL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	for key, value := range h.Headers {
		rendered, err := renderTemplate(value, templateData)
		if err != nil {
			return nil, fmt.Errorf("render header %s: %w", key, err)
		}
		req.Header.Set(key, rendered)
	}

	resp, err := cli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, string(body))
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if !gjson.ValidBytes(respBody) {
		return nil, fmt.Errorf("%w: response is not valid JSON", flows.ErrData)
	}

	list := gjson.GetBytes(respBody, orDefault(h.SourcesPath, "sources"))
	if !list.IsArray() {
		return nil, fmt.Errorf("%w: sources path %q is not an array", flows.ErrData, h.SourcesPath)
	}

	var sources []Source
	for i, src := range list.Array() {
		s, err := h.parseSource(src)
		if err != nil {
			return nil, fmt.Errorf("source[%d]: %w", i, err)
		}
		sources = append(sources, s)
	}
	return sources, nil
}

func (h *HTTPAdapter) parseSource(src gjson.Result) (Source, error) {
	name := src.Get(orDefault(h.NamePath, "name")).String()
	if name == "" {
		return Source{}, fmt.Errorf("%w: missing source name", flows.ErrData)
	}

	records := src.Get(orDefault(h.RecordsPath, "records"))
	if !records.IsArray() {
		return Source{}, fmt.Errorf("%w: source %s has no records array", flows.ErrData, name)
	}

	var table flows.Table
	for i, rec := range records.Array() {
		r, err := h.parseRecord(rec)
		if err != nil {
			return Source{}, fmt.Errorf("source %s record[%d]: %w", name, i, err)
		}
		table = append(table, r)
	}
	table.Sort()

	return Source{Name: CleanName(name), Table: table}, nil
}

func (h *HTTPAdapter) parseRecord(rec gjson.Result) (flows.Record, error) {
	station := rec.Get(orDefault(h.StationPath, "station"))
	year := rec.Get(orDefault(h.YearPath, "year"))
	values := rec.Get(orDefault(h.FlowsPath, "flows"))

	if station.Type != gjson.Number || year.Type != gjson.Number {
		return flows.Record{}, fmt.Errorf("%w: station and year must be numbers", flows.ErrData)
	}
	arr := values.Array()
	if !values.IsArray() || len(arr) != 12 {
		return flows.Record{}, fmt.Errorf("%w: flows must be an array of 12 numbers", flows.ErrData)
	}

	r := flows.Record{Station: flows.Station(station.Int()), Year: int(year.Int())}
	for m, v := range arr {
		if v.Type != gjson.Number {
			return flows.Record{}, fmt.Errorf("%w: flow %d is not a number", flows.ErrData, m+1)
		}
		r.Flows[m] = int(v.Int())
	}
	return r, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// renderTemplate renders a text template with the given data
func renderTemplate(tmplStr string, data map[string]any) (string, error) {
	if !strings.Contains(tmplStr, "{{") {
		return tmplStr, nil
	}

	tmpl, err := template.New("").Parse(tmplStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

// ValidateConfig checks if the adapter configuration is valid
func (h *HTTPAdapter) ValidateConfig() error {
	if h.URL == "" {
		return errors.New("url is required")
	}
	switch strings.ToUpper(orDefault(h.Method, http.MethodGet)) {
	case http.MethodGet, http.MethodPost:
	default:
		return fmt.Errorf("invalid method: %s (must be GET or POST)", h.Method)
	}
	return nil
}
