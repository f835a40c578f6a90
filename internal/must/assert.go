package must

import (
	"log/slog"
	"os"
)

// Assert exits the process when cond does not hold. Reserved for conditions
// that can only fail through a programming or packaging mistake, like an
// invalid embedded dataset.
func Assert(cond bool, failMessage string) {
	if !cond {
		slog.Error(failMessage)
		os.Exit(1)
	}
}
