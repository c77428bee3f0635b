package config

const (
	defaultConfigPath           = "~/.config/dubflow/config.toml"
	defaultStateDir             = "~/.local/share/dubflow"
	defaultArtifactDir          = "~/.local/share/dubflow/artifacts"
	defaultLogDir               = "~/.local/share/dubflow/logs"
	defaultAPIBind              = "127.0.0.1:7488"
	defaultSubmitRatePerMinute  = 120
	defaultSubmitBurst          = 10
	defaultMaxSubmitBytes       = 4 << 20
	defaultShutdownTimeout      = 10
	defaultQueueBackend         = "sqlite"
	defaultRetentionHours       = 72
	defaultRetentionSchedule    = "@hourly"
	defaultQueuePollInterval    = 1
	defaultMaxIdleBackoff       = 5
	defaultHeartbeatInterval    = 10
	defaultJobTimeout           = 300
	defaultReaperSchedule       = "@every 30s"
	defaultExtractConcurrency   = 2
	defaultGenerateConcurrency  = 1
	defaultMixConcurrency       = 2
	defaultVoice                = "default"
	defaultSpeechRequestsPerSec = 2.0
	defaultSpeechBurst          = 1
	defaultMixGain              = 1.0
	defaultNotifyTimeout        = 10
	defaultLogFormat            = "auto"
	defaultLogLevel             = "info"
	defaultLogRetentionDays     = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:    defaultStateDir,
			ArtifactDir: defaultArtifactDir,
			LogDir:      defaultLogDir,
		},
		API: API{
			Bind:                defaultAPIBind,
			SubmitRatePerMinute: defaultSubmitRatePerMinute,
			SubmitBurst:         defaultSubmitBurst,
			MaxSubmitBytes:      defaultMaxSubmitBytes,
			ShutdownTimeout:     defaultShutdownTimeout,
		},
		Queue: Queue{
			Backend:           defaultQueueBackend,
			RetentionHours:    defaultRetentionHours,
			RetentionSchedule: defaultRetentionSchedule,
		},
		Workflow: Workflow{
			QueuePollInterval: defaultQueuePollInterval,
			MaxIdleBackoff:    defaultMaxIdleBackoff,
			HeartbeatInterval: defaultHeartbeatInterval,
			JobTimeout:        defaultJobTimeout,
			ReaperSchedule:    defaultReaperSchedule,
			Concurrency: StageConcurrency{
				Extract:  defaultExtractConcurrency,
				Generate: defaultGenerateConcurrency,
				Mix:      defaultMixConcurrency,
			},
		},
		Speech: Speech{
			DefaultVoice:      defaultVoice,
			RequestsPerSecond: defaultSpeechRequestsPerSec,
			Burst:             defaultSpeechBurst,
		},
		Mixing: Mixing{
			Gain: defaultMixGain,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			NotifySuccess:  true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
