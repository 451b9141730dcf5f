package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"quiz-attempt-service/internal/config"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/logging"
	"github.com/spf13/cobra"
)

var errNoQuizStore = errors.New("no quiz store configured: set postgres.url or mongo.uri")

// NewSeedCmd loads quizzes from a JSON file into the configured database.
func NewSeedCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert quizzes from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			quizzes, err := readQuizFile(file)
			if err != nil {
				return err
			}
			log := logging.New(cfg.Env, cfg.Log.Level)
			b, err := buildBackends(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer b.Close()

			n, err := seedQuizzes(cmd.Context(), b, quizzes, log)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d quizzes\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "config/quizzes.json", "JSON array of quizzes")
	return cmd
}

// readQuizFile parses and validates every quiz before anything is written.
func readQuizFile(path string) ([]domain.Quiz, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read quizzes: %w", err)
	}
	var quizzes []domain.Quiz
	if err := json.Unmarshal(data, &quizzes); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for _, quiz := range quizzes {
		if quiz.ID == "" {
			return nil, &domain.DataError{Reason: "quiz without id"}
		}
		if err := quiz.Validate(); err != nil {
			return nil, fmt.Errorf("quiz %s: %w", quiz.ID, err)
		}
	}
	return quizzes, nil
}

func seedQuizzes(ctx context.Context, b *backends, quizzes []domain.Quiz, log *slog.Logger) (int, error) {
	if b.quizWriter == nil {
		return 0, errNoQuizStore
	}
	for i, quiz := range quizzes {
		if err := b.quizWriter.SaveQuiz(ctx, quiz); err != nil {
			return i, err
		}
		// Running instances would otherwise serve the old content until the TTL.
		if b.quizCache != nil {
			if err := b.quizCache.Invalidate(ctx, quiz.ID); err != nil {
				log.Warn("quiz cache invalidate failed", "quiz", quiz.ID, "err", err)
			}
		}
		log.Info("quiz seeded", "quiz", quiz.ID, "questions", len(quiz.Questions))
	}
	return len(quizzes), nil
}
