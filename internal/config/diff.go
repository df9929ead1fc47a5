package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
//
// Capture and transcription-hint changes are applied by the listener from the
// next utterance. Everything else is wired at startup and listed in
// RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// CaptureChanged is true if the profile, override or max duration changed.
	CaptureChanged bool

	// TranscriptionChanged is true if the language or task changed.
	TranscriptionChanged bool

	// RestartRequired lists the dotted paths of changed fields that only
	// take effect after a restart.
	RestartRequired []string
}

// Changed reports whether anything differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.CaptureChanged || d.TranscriptionChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oc, nc := old.Capture, new.Capture
	if oc.Profile != nc.Profile || oc.MaxDuration != nc.MaxDuration || !sameOverride(oc.Override, nc.Override) {
		d.CaptureChanged = true
	}

	ot, nt := old.Transcription, new.Transcription
	if ot.Language != nt.Language || ot.Task != nt.Task {
		d.TranscriptionChanged = true
	}

	restart := func(path string, changed bool) {
		if changed {
			d.RestartRequired = append(d.RestartRequired, path)
		}
	}
	restart("server.listen_addr", old.Server.ListenAddr != new.Server.ListenAddr)
	restart("capture.device", oc.Device != nc.Device)
	restart("capture.sample_rate", oc.SampleRate != nc.SampleRate)
	restart("capture.chunk_samples", oc.ChunkSamples != nc.ChunkSamples)
	restart("capture.temp_dir", oc.TempDir != nc.TempDir)
	restart("transcription.timeout", ot.Timeout != nt.Timeout)
	restart("transcription.min_length", ot.MinLength != nt.MinLength)
	restart("transcription.vocabulary", !slices.Equal(ot.Vocabulary, nt.Vocabulary))
	restart("providers.stt", !sameEntry(old.Providers.STT, new.Providers.STT))
	restart("providers.audio", !sameEntry(old.Providers.Audio, new.Providers.Audio))
	restart("journal.postgres_dsn", old.Journal.PostgresDSN != new.Journal.PostgresDSN)

	return d
}

func sameOverride(a, b *OverrideConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameEntry(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Options) == 0 && len(b.Options) == 0 {
		return true
	}
	return reflect.DeepEqual(a.Options, b.Options)
}
