package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"
	"gopkg.in/yaml.v3"
)

// OpenAPIHandler serves the API description as YAML and JSON
type OpenAPIHandler struct {
	yamlDoc []byte
	jsonDoc []byte
	loadErr error
}

// NewOpenAPIHandler loads and parses the document at openAPIPath once. A
// missing or invalid document is reported as 404 on every request.
func NewOpenAPIHandler(openAPIPath string) *OpenAPIHandler {
	h := &OpenAPIHandler{}
	h.yamlDoc, h.jsonDoc, h.loadErr = loadOpenAPI(openAPIPath)
	return h
}

// RegisterRoutes registers OpenAPI routes
func (h *OpenAPIHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/v1/openapi.yaml", h.ServeYAML).Methods("GET")
	r.HandleFunc("/api/v1/openapi.json", h.ServeJSON).Methods("GET")
}

// Err reports why the document could not be loaded, if it could not
func (h *OpenAPIHandler) Err() error {
	return h.loadErr
}

func loadOpenAPI(path string) ([]byte, []byte, error) {
	clean := filepath.Clean(path)
	if strings.HasPrefix(clean, "..") {
		return nil, nil, fmt.Errorf("openapi path %q escapes the working directory", path)
	}
	if ext := filepath.Ext(clean); ext != ".yaml" && ext != ".yml" {
		return nil, nil, fmt.Errorf("openapi path %q is not a YAML file", path)
	}

	data, err := os.ReadFile(clean)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read openapi document: %w", err)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("failed to parse openapi document: %w", err)
	}
	jsonDoc, err := json.Marshal(doc)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to convert openapi document: %w", err)
	}
	return data, jsonDoc, nil
}

// ServeYAML serves the OpenAPI document in YAML format
func (h *OpenAPIHandler) ServeYAML(w http.ResponseWriter, r *http.Request) {
	if h.loadErr != nil {
		http.Error(w, "OpenAPI document not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/x-yaml")
	_, _ = w.Write(h.yamlDoc)
}

// ServeJSON serves the OpenAPI document in JSON format
func (h *OpenAPIHandler) ServeJSON(w http.ResponseWriter, r *http.Request) {
	if h.loadErr != nil {
		http.Error(w, "OpenAPI document not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(h.jsonDoc)
}
