package cmd

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/spigell/hh-interviewer/internal/interview"
	"github.com/spigell/hh-interviewer/internal/questions"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "hh-interviewer"
)

type Config struct {
	QuestionsFile string                 `mapstructure:"questions-file"`
	Questions     questions.SelectConfig `mapstructure:"questions"`
	VacancyID     string                 `mapstructure:"vacancy-id"`
	UserAgent     string                 `mapstructure:"user-agent"`
	TokenFile     string                 `mapstructure:"token-file"`
	Interview     *InterviewConfig       `mapstructure:"interview"`
	Speech        *SpeechConfig          `mapstructure:"speech"`
	AI            *AIConfig              `mapstructure:"ai"`
	Results       *ResultsConfig         `mapstructure:"results"`
	Metrics       *MetricsConfig         `mapstructure:"metrics"`
}

type InterviewConfig struct {
	TimeBudget      time.Duration    `mapstructure:"time-budget"`
	TickInterval    time.Duration    `mapstructure:"tick-interval"`
	ScoringTimeout  time.Duration    `mapstructure:"scoring-timeout"`
	PersistTimeout  time.Duration    `mapstructure:"persist-timeout"`
	MaxHelpRequests int              `mapstructure:"max-help-requests"`
	MaxReprompts    int              `mapstructure:"max-reprompts"`
	HelpKeywords    []string         `mapstructure:"help-keywords"`
	Script          interview.Script `mapstructure:"script"`
}

type SpeechConfig struct {
	WordsPerMinute  int               `mapstructure:"words-per-minute"`
	Voice           string            `mapstructure:"voice"`
	Language        string            `mapstructure:"language"`
	SilenceTimeout  time.Duration     `mapstructure:"silence-timeout"`
	NoSpeechTimeout time.Duration     `mapstructure:"no-speech-timeout"`
	MaxRestarts     int               `mapstructure:"max-restarts"`
	Acronyms        map[string]string `mapstructure:"acronyms"`
}

type AIConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Provider string        `mapstructure:"provider"`
	Coaching bool          `mapstructure:"coaching"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
	// Fallback holds the rule-based scoring bands; it is decoded separately.
	Fallback map[string]interface{} `mapstructure:"fallback"`
}

type GeminiConfig struct {
	APIKeyFile   string   `mapstructure:"api-key-file"`
	Model        string   `mapstructure:"model"`
	MaxRetries   int      `mapstructure:"max-retries"`
	MaxLogLength int      `mapstructure:"max-log-length"`
	Temperature  *float32 `mapstructure:"temperature"`
}

type ResultsConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "hh-interviewer runs a spoken mock interview for a vacancy and scores the answers",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := viper.BindEnv("token-file", "HH_TOKEN_FILE"); err != nil {
		log.Fatalf("binding HH_TOKEN_FILE environment variable: %v", err)
	}
	if err := viper.BindEnv("ai.gemini.api-key-file", "GEMINI_API_KEY_FILE"); err != nil {
		log.Fatalf("binding GEMINI_API_KEY_FILE environment variable: %v", err)
	}

	viper.SetDefault("results.driver", "sqlite")
	viper.SetDefault("results.path", "hh-interviewer.db")
	viper.SetDefault("metrics.listen", ":9090")
	viper.SetDefault("ai.provider", "gemini")

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is hh-interviewer.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")
	rootCmd.PersistentFlags().String("log-file", "", "write logs to this file instead of stderr")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	viper.BindPFlag("log-file", rootCmd.PersistentFlags().Lookup("log-file"))
}

func initConfig() {
	if runCmd.CalledAs() == "" && resultsCmd.CalledAs() == "" {
		return
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app + ".yaml")
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		// the built-in question bank and defaults are enough to run without a file
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func logOutputs() []string {
	if file := strings.TrimSpace(viper.GetString("log-file")); file != "" {
		return []string{file}
	}
	return nil
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	if config.Interview == nil {
		config.Interview = &InterviewConfig{}
	}
	if config.Speech == nil {
		config.Speech = &SpeechConfig{}
	}
	if config.AI == nil {
		config.AI = &AIConfig{}
	}
	if config.Results == nil {
		config.Results = &ResultsConfig{}
	}
	if config.Metrics == nil {
		config.Metrics = &MetricsConfig{}
	}

	return config, nil
}
