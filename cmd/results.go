package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spigell/hh-interviewer/internal/interview"
	"github.com/spigell/hh-interviewer/internal/logger"
	"github.com/spigell/hh-interviewer/internal/results"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const PromptExit = "exit"

var resultsCmd = &cobra.Command{
	Use:   "results [session-id]",
	Short: "Browse finished interviews",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		showResults(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(resultsCmd)

	resultsCmd.Flags().IntP("limit", "n", 20, "how many recent interviews to list")
	resultsCmd.Flags().Bool("dump", false, "print the stored outcome as json")
}

func showResults(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"), logOutputs()...)
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	store, err := results.Open(config.Results.Driver, config.Results.Path)
	if err != nil {
		logger.Fatal("opening results store", zap.Error(err))
	}
	defer store.Close()

	dump, _ := cmd.Flags().GetBool("dump")

	if len(args) == 1 {
		if err := printOutcome(ctx, store, args[0], dump); err != nil {
			logger.Fatal("reading result", zap.Error(err))
		}
		return
	}

	limit, _ := cmd.Flags().GetInt("limit")
	list, err := store.List(ctx, limit)
	if err != nil {
		logger.Fatal("listing results", zap.Error(err))
	}
	if len(list) == 0 {
		logger.Info("exiting", zap.String("reason", "no interviews stored yet"), zap.String("path", config.Results.Path))
		return
	}

	for {
		items := make([]string, 0, len(list)+1)
		for _, s := range list {
			items = append(items, summaryLabel(s))
		}

		resultPrompt := promptui.Select{
			Label: "Choose an interview and press ENTER",
			Items: append(items, PromptExit),
			Size:  10,
		}

		idx, selected, err := resultPrompt.Run()
		if err != nil || selected == PromptExit {
			return
		}

		if err := printOutcome(ctx, store, list[idx].SessionID, dump); err != nil {
			logger.Error("reading result", zap.Error(err))
		}
	}
}

func summaryLabel(s results.Summary) string {
	return fmt.Sprintf("%s %s / %s / %.1f %s / %d of %d / %s",
		s.SessionID, s.EndedAt.Local().Format(time.DateTime), s.JobTitle,
		s.Score, s.Band, s.QuestionsCompleted, s.TotalQuestions, s.Reason,
	)
}

func printOutcome(ctx context.Context, store results.Store, id string, dump bool) error {
	outcome, err := store.Get(ctx, id)
	if err != nil {
		return err
	}

	if dump {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(outcome)
	}

	fmt.Print(formatOutcome(outcome))
	return nil
}

func formatOutcome(o *interview.Outcome) string {
	var b strings.Builder

	fmt.Fprintf(&b, "\n%s (%s), %s\n", o.Job.Title, o.Reason, o.EndedAt.Local().Format(time.DateTime))
	if f := o.Feedback; f != nil {
		fmt.Fprintf(&b, "Score %.1f/100 %s [%s]\n%s\n", f.Score, f.Band, f.Source, f.Summary)
		for _, s := range f.Strengths {
			fmt.Fprintf(&b, "  + %s\n", s)
		}
		for _, s := range f.Improvements {
			fmt.Fprintf(&b, "  - %s\n", s)
		}
	}

	b.WriteString("\nTranscript:\n")
	for _, e := range o.Transcript.Entries() {
		switch e.Kind {
		case interview.EntrySystem:
			fmt.Fprintf(&b, "  [system] %s\n", e.Text)
		case interview.EntryTurn:
			answer := e.Turn.Response
			if answer == "" {
				answer = "(no answer)"
			}
			fmt.Fprintf(&b, "  Q%d: %s\n  A (%s): %s\n", e.Turn.Index+1, e.Turn.Question, e.Turn.Method, answer)
		}
	}

	return b.String()
}
