package config

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	cli "github.com/spf13/pflag"

	"voxchat/internal/ipc"
)

var LogLevels = []string{"debug", "info", "warn", "error"}

// Config is read from the environment (optionally seeded from a .env file)
// and then overridden by command line flags.
type Config struct {
	// Completion service
	APIKey       string `envconfig:"OPENAI_API_KEY"`
	BaseURL      string `envconfig:"OPENAI_BASE_URL"`
	SystemPrompt string `envconfig:"VOXCHAT_SYSTEM_PROMPT"`

	// Models
	ModelsDir     string `envconfig:"VOXCHAT_MODELS_DIR" default:"models"`
	SpeechModel   string `envconfig:"VOXCHAT_STT_MODEL" default:"base"`
	LanguageModel string `envconfig:"VOXCHAT_LLM_MODEL" default:"gpt-3.5-turbo"`
	Language      string `envconfig:"VOXCHAT_LANGUAGE" default:"auto"` // whisper language, auto detects

	AudioFile string `envconfig:"VOXCHAT_AUDIO_FILE" default:"voice.wav"`
	Socket    string `envconfig:"VOXCHAT_SOCKET" default:"/tmp/voxchat.sock"`

	// Flag only
	EnvFile  string `ignored:"true"`
	LogLevel string `ignored:"true"`
	LogFile  string `ignored:"true"`
	WebAddr  string `ignored:"true"`
	Proxy    string `ignored:"true"`
	Beep     string `ignored:"true"`
	Speak    bool   `ignored:"true"`
	Duck     bool   `ignored:"true"`
}

// Load parses args (without the program name), loads the env file and the
// environment, and applies flags that were set explicitly.
func Load(args []string) (*Config, error) {
	fl := cli.NewFlagSet("voxchat", cli.ContinueOnError)

	envFile := fl.StringP("env", "e", ".env", "Env file path")
	logLevel := fl.StringP("log", "l", "info", "Log level")
	logFile := fl.String("log-file", "voxchat.log", "Log file used while the terminal UI runs")
	webAddr := fl.StringP("web", "w", "", "Serve the browser UI on this address instead of the terminal UI")
	proxyAddr := fl.StringP("proxy", "p", "", "Socks proxy address for the completion API")
	beep := fl.String("beep", "", "Mp3 played when recording starts")
	speak := fl.Bool("speak", false, "Read replies aloud")
	duck := fl.Bool("duck", false, "Lower other audio while recording")
	socket := fl.String("socket", ipc.DefaultSocketPath, "Control socket path")
	sttModel := fl.String("stt-model", "", "Initial speech model")
	llmModel := fl.String("llm-model", "", "Initial language model")
	modelsDir := fl.String("models-dir", "", "Directory holding ggml-<name>.bin files")

	if err := fl.Parse(args); err != nil {
		return nil, err
	}

	if err := godotenv.Load(*envFile); err != nil {
		// the default file is optional
		if fl.Changed("env") || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %q: %w", *envFile, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg.EnvFile = *envFile
	cfg.LogLevel = *logLevel
	cfg.LogFile = *logFile
	cfg.WebAddr = *webAddr
	cfg.Proxy = *proxyAddr
	cfg.Beep = *beep
	cfg.Speak = *speak
	cfg.Duck = *duck

	if fl.Changed("socket") {
		cfg.Socket = *socket
	}
	if fl.Changed("stt-model") {
		cfg.SpeechModel = *sttModel
	}
	if fl.Changed("llm-model") {
		cfg.LanguageModel = *llmModel
	}
	if fl.Changed("models-dir") {
		cfg.ModelsDir = *modelsDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.APIKey == "" && c.BaseURL == "" {
		return errors.New("OPENAI_API_KEY is required unless OPENAI_BASE_URL is set")
	}
	if !slices.Contains(LogLevels, c.LogLevel) {
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	if c.SpeechModel == "" || c.LanguageModel == "" {
		return errors.New("speech and language models must not be empty")
	}
	return nil
}

// Web reports whether the browser front-end replaces the terminal UI.
func (c *Config) Web() bool { return c.WebAddr != "" }
