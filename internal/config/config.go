package config

// Config holds all runtime configuration for the haven server and CLI.
type Config struct {
	Server  ServerConfig
	Ollama  OllamaConfig
	Storage StorageConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port int
}

// OllamaConfig names the local models used by each stage of the turn
// pipeline. The router model handles the cheap sensitivity verdict, the
// casual and support models generate responses, and the profile model
// produces structured profile updates.
type OllamaConfig struct {
	BaseURL      string
	RouterModel  string
	CasualModel  string
	SupportModel string
	ProfileModel string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Ollama: OllamaConfig{
			BaseURL:      "http://localhost:11434",
			RouterModel:  "phi3.5",
			CasualModel:  "phi3.5",
			SupportModel: "mistral-nemo",
			ProfileModel: "phi3.5",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file backend at
// $XDG_CONFIG_HOME/haven/config.json, then applies HAVEN_* environment
// variable overrides on top.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}
