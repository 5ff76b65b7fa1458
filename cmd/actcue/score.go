package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/actcue/actcue/internal/smart"
)

func scoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "score [text]",
		Short: "Score text against the five SMART criteria",
		Long: `Scores a statement for being specific, measurable, assignable, relevant,
and time-bound. With no argument, lines are read from stdin and re-scored
as they arrive, the way live transcript deltas are coached during capture.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				printScore(args[0], smart.Evaluate(args[0]))
				return nil
			}

			transcripts := make(chan string)
			updates := smart.Coach(cmd.Context(), transcripts)

			go func() {
				defer close(transcripts)
				scanner := bufio.NewScanner(os.Stdin)
				var full strings.Builder
				for scanner.Scan() {
					// Each line extends the running transcript, mirroring
					// incremental speech-to-text output.
					if full.Len() > 0 {
						full.WriteByte(' ')
					}
					full.WriteString(scanner.Text())
					select {
					case transcripts <- full.String():
					case <-cmd.Context().Done():
						return
					}
				}
			}()

			for update := range updates {
				printScore(update.Transcript, update.Score)
			}
			return nil
		},
	}
}

func printScore(text string, score smart.Score) {
	fmt.Printf("%d/5 SMART: %q\n", score.Total(), text)
	for _, check := range []struct {
		name string
		ok   bool
	}{
		{"specific", score.Specific},
		{"measurable", score.Measurable},
		{"assignable", score.Assignable},
		{"relevant", score.Relevant},
		{"time-bound", score.TimeBound},
	} {
		mark := " "
		if check.ok {
			mark = "x"
		}
		fmt.Printf("  [%s] %s\n", mark, check.name)
	}
}
