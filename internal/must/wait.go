package must

import "time"

// Wait sleeps linearly longer on every occurrence, capped at max. Used to
// space out retries against the analysis pipeline.
type Wait struct {
	max        time.Duration
	occurences int
}

func NewWait(max time.Duration) *Wait {
	return &Wait{max: max}
}

func (w *Wait) Linearly(step time.Duration) {
	sleep := step * time.Duration(w.occurences)
	time.Sleep(min(sleep, w.max))
	w.occurences++
}
