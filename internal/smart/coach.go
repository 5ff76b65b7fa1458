package smart

import "context"

// Update pairs a transcript snapshot with its score.
type Update struct {
	Transcript string
	Score      Score
}

// Coach re-scores every transcript delta from a live stream. It reads full
// transcript snapshots from transcripts and emits one Update per snapshot
// until the input closes or the context is cancelled. It has no side effects
// on capture state.
func Coach(ctx context.Context, transcripts <-chan string) <-chan Update {
	updates := make(chan Update, 1)

	go func() {
		defer close(updates)
		for {
			select {
			case <-ctx.Done():
				return
			case transcript, ok := <-transcripts:
				if !ok {
					return
				}
				select {
				case <-ctx.Done():
					return
				case updates <- Update{Transcript: transcript, Score: Evaluate(transcript)}:
				}
			}
		}
	}()

	return updates
}
