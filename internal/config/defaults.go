package config

const (
	defaultBlockFrames     = 4096
	defaultSidecarName     = "rxbridge_envelope.json"
	defaultWavName         = "rxbridge_exchange.wav"
	defaultNameSuffix      = " [RX]"
	defaultExtractedSuffix = "_extracted"
	defaultStatePath       = "~/.local/share/rxbridge/state.db"
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"

	maxBlockFrames = 1 << 20
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Exchange: Exchange{
			BlockFrames:     defaultBlockFrames,
			SidecarName:     defaultSidecarName,
			WavName:         defaultWavName,
			NameSuffix:      defaultNameSuffix,
			ExtractedSuffix: defaultExtractedSuffix,
		},
		State: State{
			Path: defaultStatePath,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
