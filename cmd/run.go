package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spigell/hh-interviewer/internal/ai"
	"github.com/spigell/hh-interviewer/internal/ai/gemini"
	"github.com/spigell/hh-interviewer/internal/console"
	"github.com/spigell/hh-interviewer/internal/headhunter"
	"github.com/spigell/hh-interviewer/internal/interview"
	"github.com/spigell/hh-interviewer/internal/logger"
	"github.com/spigell/hh-interviewer/internal/metrics"
	"github.com/spigell/hh-interviewer/internal/questions"
	"github.com/spigell/hh-interviewer/internal/results"
	"github.com/spigell/hh-interviewer/internal/secrets"
	"github.com/spigell/hh-interviewer/internal/speech"
	"github.com/spigell/hh-interviewer/internal/turn"

	"github.com/manifoldco/promptui"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultTimeBudget = 15 * time.Minute
	metricsNamespace  = "hh_interviewer"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a mock interview in the terminal",
	Run: func(cmd *cobra.Command, _ []string) {
		run(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolP("auto-aprove", "y", false, "do not ask for confirmation before the interview starts")
	runCmd.Flags().StringP("questions-file", "q", "", "yaml file with the job and questions. Default is the built-in bank.")
	runCmd.Flags().StringP("vacancy-id", "v", "", "hh.ru vacancy id used as the job context")
	runCmd.Flags().Duration("time-budget", 0, "total interview time, overrides the config and the question bank")
	runCmd.Flags().Int("limit", 0, "ask at most this many questions")

	viper.BindPFlag("questions-file", runCmd.Flags().Lookup("questions-file"))
	viper.BindPFlag("vacancy-id", runCmd.Flags().Lookup("vacancy-id"))
	viper.BindPFlag("interview.time-budget", runCmd.Flags().Lookup("time-budget"))
	viper.BindPFlag("questions.limit", runCmd.Flags().Lookup("limit"))
}

// run is the main command for the cli.
func run(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"), logOutputs()...)
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the hh-interviewer", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	bank, err := loadBank(ctx, config, logger)
	if err != nil {
		logger.Fatal("loading questions", zap.Error(err))
	}

	selected, err := questions.Run(questions.Filters(config.Questions), bank.Questions, logger)
	if err != nil {
		logger.Fatal("selecting questions", zap.Error(err))
	}

	budget := timeBudget(config.Interview.TimeBudget, bank.TimeBudget)

	logger.Info("interview prepared",
		zap.String("job", bank.Job.Title),
		zap.Int("questions", len(selected)),
		zap.Duration("time_budget", budget),
	)

	if cmd.Flag("auto-aprove").Value.String() == "false" {
		if !confirm(fmt.Sprintf("Start a %s interview for %q with %d questions", budget, bank.Job.Title, len(selected))) {
			logger.Info("exiting", zap.String("reason", "got no from prompt"))
			return
		}
	}

	scorer, coach := newAI(ctx, config.AI, bank.Job, logger)

	policy, err := ai.DecodeFallbackPolicy(fallbackSettings(config.AI))
	if err != nil {
		logger.Fatal("decoding fallback scoring policy", zap.Error(err))
	}

	store, err := results.Open(config.Results.Driver, config.Results.Path)
	if err != nil {
		logger.Fatal("opening results store", zap.Error(err))
	}
	defer store.Close()

	term := console.NewTerminal(os.Stdin, os.Stdout, config.Speech.WordsPerMinute, logger.Named("console"))
	observers := interview.Observers{console.NewPrinter(term, logger)}

	var registry *prometheus.Registry
	if config.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		observers = append(observers, metrics.NewCollector(metricsNamespace, registry, logger))
	}

	session, err := interview.New(interview.Config{
		Questions:      selected,
		TimeBudget:     budget,
		TickInterval:   config.Interview.TickInterval,
		ScoringTimeout: config.Interview.ScoringTimeout,
		PersistTimeout: config.Interview.PersistTimeout,
		Job:            bank.Job,
		Script:         config.Interview.Script,
	}, interview.Deps{
		Turns:    turnFactory(term, config, coach, logger),
		Scorer:   scorer,
		Fallback: ai.NewRuleBased(policy),
		Sink:     store,
		Observer: observers,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("creating the interview", zap.Error(err))
	}
	term.Attach(session)
	term.Usage()

	outcome, err := serve(ctx, session, term, registry, config.Metrics.Listen, logger)
	if err != nil {
		logger.Fatal("running the interview", zap.Error(err))
	}

	logger.Info("interview finished",
		zap.String("session_id", outcome.SessionID),
		zap.String("reason", string(outcome.Reason)),
		zap.String("results", config.Results.Path),
	)
}

// serve runs the session next to the terminal reader and the optional metrics endpoint.
func serve(ctx context.Context, session *interview.Session, term *console.Terminal, registry *prometheus.Registry, listen string, logger *zap.Logger) (*interview.Outcome, error) {
	// everything else stops once the session completed
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)

	var outcome *interview.Outcome
	g.Go(func() error {
		defer cancel()
		var err error
		outcome, err = session.Run(gctx)
		return err
	})

	g.Go(func() error {
		return term.Run(gctx)
	})

	if registry != nil {
		srv := &http.Server{
			Addr:              listen,
			Handler:           metricsMux(registry),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("serving metrics", zap.String("listen", listen))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		return outcome, err
	}
	return outcome, nil
}

func metricsMux(registry *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return mux
}

func loadBank(ctx context.Context, config *Config, logger *zap.Logger) (*questions.Bank, error) {
	var (
		bank *questions.Bank
		err  error
	)
	if path := strings.TrimSpace(config.QuestionsFile); path != "" {
		bank, err = questions.Load(path)
	} else {
		logger.Info("using the built-in question bank")
		bank, err = questions.Default()
	}
	if err != nil {
		return nil, err
	}

	if id := strings.TrimSpace(config.VacancyID); id != "" {
		job, err := vacancyJob(ctx, config, id, logger)
		if err != nil {
			logger.Warn("using the question bank job instead of the vacancy", zap.String("vacancy_id", id), zap.Error(err))
		} else {
			bank.WithJob(job)
		}
	}

	return bank, nil
}

func vacancyJob(ctx context.Context, config *Config, id string, logger *zap.Logger) (ai.JobContext, error) {
	token, err := resolveToken(config)
	if err != nil {
		// public vacancies can be read anonymously
		logger.Debug("requesting vacancy without a token", zap.Error(err))
	}

	hh := headhunter.New(ctx, logger, token)
	if config.UserAgent != "" {
		hh.UserAgent = config.UserAgent
	}

	vacancy, err := hh.GetVacancy(id)
	if err != nil {
		return ai.JobContext{}, err
	}
	if vacancy.Archived {
		logger.Warn("vacancy is archived", zap.String("vacancy_id", id), zap.String("url", vacancy.AlternateURL))
	}

	return vacancy.JobContext(), nil
}

func resolveToken(config *Config) (string, error) {
	if config == nil {
		return "", errors.New("config is required")
	}

	tokenFile := strings.TrimSpace(config.TokenFile)
	if tokenFile == "" {
		tokenFile = strings.TrimSpace(viper.GetString("token-file"))
	}

	if tokenFile == "" {
		return "", errors.New("headhunter token file is not configured")
	}

	return secrets.Load(secrets.Source{
		Name: "headhunter token",
		File: tokenFile,
	})
}

func timeBudget(configured, fromBank time.Duration) time.Duration {
	switch {
	case configured > 0:
		return configured
	case fromBank > 0:
		return fromBank
	default:
		return defaultTimeBudget
	}
}

func confirm(label string) bool {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
	}
	_, err := prompt.Run()
	return err == nil
}

func turnFactory(term *console.Terminal, config *Config, coach turn.Coach, logger *zap.Logger) func(turn.Events) interview.TurnRunner {
	sc := config.Speech

	return func(events turn.Events) interview.TurnRunner {
		out := speech.NewOutput(term.TTS, speech.OutputOptions{
			Voice:    sc.Voice,
			Language: sc.Language,
			Acronyms: sc.Acronyms,
		}, speech.OutputEvents{}, logger.Named("speech-output"))

		in := speech.NewInput(term.STT, speech.InputOptions{
			SilenceTimeout:  sc.SilenceTimeout,
			NoSpeechTimeout: sc.NoSpeechTimeout,
			MaxRestarts:     sc.MaxRestarts,
		}, logger.Named("speech-input"))

		var classifier turn.Classifier
		if len(config.Interview.HelpKeywords) > 0 {
			classifier = turn.NewKeywordClassifier(config.Interview.HelpKeywords)
		}

		return turn.New(out, in, classifier, coach, turn.Options{
			MaxHelpRequests: config.Interview.MaxHelpRequests,
			MaxReprompts:    config.Interview.MaxReprompts,
		}, events, logger.Named("turn"))
	}
}

// newAI builds the model scorer and coach. Without them the session scores with the rule-based fallback
// and answers help requests with a static hint.
func newAI(ctx context.Context, cfg *AIConfig, job ai.JobContext, logger *zap.Logger) (ai.Scorer, turn.Coach) {
	if !cfg.Enabled {
		logger.Info("ai scoring disabled, using rule-based feedback")
		return nil, nil
	}

	generator, err := newGenerator(ctx, cfg, logger)
	if err != nil {
		logger.Warn("skipping ai scoring", zap.Error(err))
		return nil, nil
	}

	scorerLogger := logger.With(
		zap.String("provider", "gemini"),
		zap.String("model", generator.Model()),
	)
	scorer := gemini.NewScorer(generator, scorerLogger, cfg.Gemini.MaxLogLength)

	if !cfg.Coaching {
		return scorer, nil
	}
	return scorer, gemini.NewCoach(generator, job.Title, scorerLogger)
}

func newGenerator(ctx context.Context, cfg *AIConfig, logger *zap.Logger) (*gemini.Generator, error) {
	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider != "" && provider != "gemini" {
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}
	if cfg.Gemini == nil {
		cfg.Gemini = &GeminiConfig{}
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name: "gemini api key",
		File: cfg.Gemini.APIKeyFile,
		Env:  "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY_FILE)", err)
	}

	genLogger := logger.With(
		zap.String("provider", "gemini"),
		zap.String("model", cfg.Gemini.Model),
		zap.Int("ai_retry_attempts", cfg.Gemini.MaxRetries),
	)

	return gemini.NewGenerator(ctx, apiKey, gemini.Options{
		Model:       cfg.Gemini.Model,
		MaxRetries:  cfg.Gemini.MaxRetries,
		Temperature: cfg.Gemini.Temperature,
	}, genLogger)
}

func fallbackSettings(cfg *AIConfig) interface{} {
	if len(cfg.Fallback) == 0 {
		return nil
	}
	return cfg.Fallback
}
