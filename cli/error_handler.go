package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/grovetools/pgpulse/errors"
)

// ErrorHandler provides user-friendly error messages
type ErrorHandler struct {
	Verbose bool
	Out     io.Writer
}

// NewErrorHandler creates a new error handler writing to stderr.
func NewErrorHandler(verbose bool) *ErrorHandler {
	return &ErrorHandler{
		Verbose: verbose,
		Out:     os.Stderr,
	}
}

// Handle prints a message for err based on its code and returns err.
func (h *ErrorHandler) Handle(err error) error {
	if err == nil {
		return nil
	}
	out := h.Out

	switch errors.GetCode(err) {
	case errors.ErrCodeConfigNotFound:
		fmt.Fprintf(out, "Error: configuration not found: %v\n", err)
		fmt.Fprintln(out, "Create pgpulse.yml or pass --dsn to monitor a single server.")

	case errors.ErrCodeConfigInvalid, errors.ErrCodeConfigValidation:
		fmt.Fprintf(out, "Error: %v\n", err)
		if path, ok := errors.Detail(err, "path"); ok {
			fmt.Fprintf(out, "Check %v, or run 'pgpulse config validate' for details.\n", path)
		}

	case errors.ErrCodeSessionInUse:
		fmt.Fprintf(out, "Error: %v\n", err)
		fmt.Fprintln(out, "The session is still being recorded. Replay it after the recording stops, or use 'pgpulse attach' to watch it live.")

	case errors.ErrCodeSessionOpen, errors.ErrCodeReplayCorruption:
		fmt.Fprintf(out, "Error: %v\n", err)
		fmt.Fprintln(out, "Run 'pgpulse sessions list' to see recorded sessions.")

	case errors.ErrCodeProducerClaimed:
		fmt.Fprintf(out, "Error: %v\n", err)
		fmt.Fprintln(out, "Only one live session or replay may publish at a time.")

	default:
		fmt.Fprintf(out, "Error: %v\n", err)
	}

	if h.Verbose {
		if pe, ok := err.(*errors.PulseError); ok {
			fmt.Fprintf(out, "\nError details:\n%s\n", pe.ToJSON())
		}
	}
	return err
}
