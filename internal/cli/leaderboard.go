package cli

import (
	"fmt"
	"text/tabwriter"

	"quiz-attempt-service/internal/config"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/logging"
	"github.com/spf13/cobra"
)

// NewLeaderboardCmd prints a quiz leaderboard from the configured result store.
func NewLeaderboardCmd(configPath *string) *cobra.Command {
	var quizID string
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Print the ranked leaderboard for a quiz",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			b, err := buildBackends(cmd.Context(), cfg, logging.New(cfg.Env, "error"))
			if err != nil {
				return err
			}
			defer b.Close()

			board, err := b.service.Leaderboard(cmd.Context(), quizID)
			if err != nil {
				return err
			}
			return printLeaderboard(cmd, board)
		},
	}
	cmd.Flags().StringVar(&quizID, "quiz", "", "quiz id")
	_ = cmd.MarkFlagRequired("quiz")
	return cmd
}

func printLeaderboard(cmd *cobra.Command, board domain.Leaderboard) error {
	if len(board.Entries) == 0 {
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "no results for %s\n", board.QuizID)
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tUSER\tSCORE\tDURATION\tAT")
	for _, e := range board.Entries {
		fmt.Fprintf(w, "%d\t%s\t%d\t%ds\t%s\n", e.Rank+1, e.Username, e.Score, e.DurationSeconds, e.CreatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}
