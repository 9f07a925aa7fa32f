package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/ajitpratap0/relay/internal/pipeline"
	"github.com/ajitpratap0/relay/pkg/config/envsubst"
	"github.com/ajitpratap0/relay/pkg/errors"
	"github.com/ajitpratap0/relay/pkg/models"
	"github.com/ajitpratap0/relay/pkg/retry"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// PipelineSpec is the file form of a pipeline
type PipelineSpec struct {
	Name string `yaml:"name"`
	// Schedule is a standard 5-field cron expression or a descriptor such as @hourly
	Schedule      string                 `yaml:"schedule"`
	Source        *models.Connector      `yaml:"source"`
	Target        *models.Connector      `yaml:"target"`
	Data          []models.Record        `yaml:"data"`
	ErrorHandling *retry.Policy          `yaml:"error_handling"`
	RateLimiting  *pipeline.RateLimiting `yaml:"rate_limiting"`
}

type pipelineFile struct {
	Pipelines []PipelineSpec `yaml:"pipelines"`
}

// Load loads a configuration from a YAML file after substituting
// environment variables
func Load(filePath string, config interface{}) error {
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: File path is controlled by caller
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data, config)
}

// Parse decodes YAML content after substituting environment variables
func Parse(data []byte, config interface{}) error {
	content := envsubst.Expand(string(data))
	dec := yaml.NewDecoder(bytes.NewReader([]byte(content)))
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// LoadPipelines reads one or more pipeline definitions from a file
func LoadPipelines(filePath string) ([]PipelineSpec, error) {
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: File path is controlled by caller
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read pipeline file")
	}
	return ParsePipelines(data)
}

// ParsePipelines decodes a document holding either a "pipelines" list or a
// single pipeline, then validates every entry.
func ParsePipelines(data []byte) ([]PipelineSpec, error) {
	var probe map[string]interface{}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse pipeline file")
	}

	var specs []PipelineSpec
	if _, ok := probe["pipelines"]; ok {
		var file pipelineFile
		if err := Parse(data, &file); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid pipeline file")
		}
		specs = file.Pipelines
	} else {
		var single PipelineSpec
		if err := Parse(data, &single); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid pipeline file")
		}
		specs = []PipelineSpec{single}
	}

	seen := make(map[string]bool, len(specs))
	for i := range specs {
		if err := specs[i].Validate(); err != nil {
			return nil, err
		}
		if seen[specs[i].Name] {
			return nil, errors.Newf(errors.ErrorTypeConfig, "duplicate pipeline name %q", specs[i].Name)
		}
		seen[specs[i].Name] = true
	}
	return specs, nil
}

// Validate checks the parts of a spec the engine cannot check later
func (s *PipelineSpec) Validate() error {
	if s.Name == "" {
		return errors.New(errors.ErrorTypeConfig, "pipeline name is required")
	}
	if s.Source == nil && s.Data == nil {
		return errors.Newf(errors.ErrorTypeConfig, "pipeline %s: source or data is required", s.Name)
	}
	if s.Source != nil && s.Data != nil {
		return errors.Newf(errors.ErrorTypeConfig, "pipeline %s: source and data are mutually exclusive", s.Name)
	}
	for _, c := range []*models.Connector{s.Source, s.Target} {
		if c != nil && c.Adapter == "" {
			return errors.Newf(errors.ErrorTypeConfig, "pipeline %s: connector adapter is required", s.Name)
		}
	}
	if s.ErrorHandling != nil && s.ErrorHandling.MaxRetries < 0 {
		return errors.Newf(errors.ErrorTypeConfig, "pipeline %s: max_retries must be >= 0", s.Name)
	}
	if s.Schedule != "" {
		if _, err := cron.ParseStandard(s.Schedule); err != nil {
			return errors.Wrap(err, errors.ErrorTypeConfig, fmt.Sprintf("pipeline %s: invalid schedule", s.Name))
		}
	}
	return nil
}

// Pipeline converts the spec into an engine pipeline, filling omitted
// sections from defaults
func (s *PipelineSpec) Pipeline(defaults PipelineDefaults) *pipeline.Pipeline {
	p := &pipeline.Pipeline{
		Name:          s.Name,
		Source:        s.Source,
		Target:        s.Target,
		Data:          s.Data,
		ErrorHandling: defaults.ErrorHandling,
		RateLimiting:  defaults.RateLimiting,
	}
	if s.ErrorHandling != nil {
		p.ErrorHandling = *s.ErrorHandling
	}
	if s.RateLimiting != nil {
		p.RateLimiting = *s.RateLimiting
	}
	return p
}
