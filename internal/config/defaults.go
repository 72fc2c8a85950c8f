package config

const (
	defaultConfigPath           = "~/.config/opgrid/config.toml"
	defaultRegistryDir          = "~/.config/opgrid/schemas"
	defaultStateDir             = "~/.local/share/opgrid"
	defaultLogDir               = "~/.local/share/opgrid/logs"
	defaultRegistryExtension    = "yaml"
	defaultGroupSize            = 1
	defaultCoordinator          = "127.0.0.1:7611"
	defaultJoinTimeoutSeconds   = 30
	defaultDrainTimeoutSeconds  = 300
	defaultNotifyTimeoutSeconds = 10
	defaultLogFormat            = "auto"
	defaultLogLevel             = "info"
	defaultWriteResultDocuments = true
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			RegistryDir: defaultRegistryDir,
			StateDir:    defaultStateDir,
			LogDir:      defaultLogDir,
		},
		Registry: Registry{
			Extension: defaultRegistryExtension,
		},
		Group: Group{
			Rank:         0,
			Size:         defaultGroupSize,
			Coordinator:  defaultCoordinator,
			JoinTimeout:  defaultJoinTimeoutSeconds,
			DrainTimeout: defaultDrainTimeoutSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeoutSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Results: Results{
			WriteDocuments: defaultWriteResultDocuments,
		},
	}
}
