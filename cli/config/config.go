package config

import (
	"fmt"
	"time"

	"github.com/pithecene-io/stagekit/lode"
)

// Config represents a stagekit.yaml configuration file.
// All values are optional and act as defaults for stagekit flags.
// CLI flags always override config values.
type Config struct {
	Stage      string         `yaml:"stage"`
	OutputRoot string         `yaml:"output_root"`
	Production bool           `yaml:"production"`
	Archive    ArchiveConfig  `yaml:"archive"`
	Adapter    AdapterConfig  `yaml:"adapter"`
	Parallel   ParallelConfig `yaml:"parallel"`
	Workflow   WorkflowConfig `yaml:"workflow"`
}

// ArchiveConfig holds metadata archive defaults from the config file.
type ArchiveConfig struct {
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// Enabled reports whether an archive location is configured.
func (a ArchiveConfig) Enabled() bool {
	return a.Path != ""
}

// S3 converts the archive settings to an S3 configuration.
func (a ArchiveConfig) S3() lode.S3Config {
	bucket, prefix := lode.ParseS3Path(a.Path)
	return lode.S3Config{
		Bucket:       bucket,
		Prefix:       prefix,
		Region:       a.Region,
		Endpoint:     a.Endpoint,
		UsePathStyle: a.S3PathStyle,
	}
}

// AdapterConfig holds completion notification defaults from the config file.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Secret  string            `yaml:"secret,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// ParallelConfig holds fan-out defaults.
type ParallelConfig struct {
	Workers int `yaml:"workers"`
}

// WorkflowConfig identifies the tool to the workflow engine.
type WorkflowConfig struct {
	Tool        string `yaml:"tool"`
	ToolVersion string `yaml:"tool_version"`
	Cluster     string `yaml:"cluster"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}
