package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/earshot/pkg/provider/stt"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":   {"whisper", "whisper-native", "openai", "deepgram", "mock"},
	"audio": {"portaudio"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. An empty document yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Capture
	c := cfg.Capture
	if _, err := c.ResolveProfile(); err != nil {
		errs = append(errs, err)
	}
	if c.MaxDuration < 0 {
		errs = append(errs, fmt.Errorf("capture.max_duration %s must not be negative", c.MaxDuration))
	}
	if c.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("capture.sample_rate %d must be positive", c.SampleRate))
	}
	if c.ChunkSamples < 0 {
		errs = append(errs, fmt.Errorf("capture.chunk_samples %d must be positive", c.ChunkSamples))
	}

	// Transcription
	t := cfg.Transcription
	if t.Timeout < 0 {
		errs = append(errs, fmt.Errorf("transcription.timeout %s must not be negative", t.Timeout))
	}
	if _, err := t.ParsedTask(); err != nil {
		errs = append(errs, fmt.Errorf("transcription.task: %w; valid values: transcribe, translate", err))
	}
	if t.MinLength < 0 {
		errs = append(errs, fmt.Errorf("transcription.min_length %d must not be negative", t.MinLength))
	}

	// Providers
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("audio", cfg.Providers.Audio.Name)
	errs = append(errs, validateSTTEntry(cfg.Providers.STT, t)...)

	return errors.Join(errs...)
}

// validateSTTEntry checks the fields each built-in STT backend requires.
func validateSTTEntry(e ProviderEntry, t TranscriptionConfig) []error {
	var errs []error
	switch e.Name {
	case "whisper":
		if e.BaseURL == "" {
			errs = append(errs, errors.New("providers.stt.base_url is required for the whisper provider"))
		}
	case "whisper-native":
		if e.Model == "" && optString(e.Options, "model_path") == "" {
			errs = append(errs, errors.New("providers.stt.model (the model file path) is required for the whisper-native provider"))
		}
	case "openai":
		if e.APIKey == "" {
			errs = append(errs, errors.New("providers.stt.api_key is required for the openai provider"))
		}
	case "deepgram":
		if e.APIKey == "" {
			errs = append(errs, errors.New("providers.stt.api_key is required for the deepgram provider"))
		}
		if t.Task == string(stt.TaskTranslate) {
			errs = append(errs, errors.New("transcription.task translate is not supported by the deepgram provider"))
		}
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

// optString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}
