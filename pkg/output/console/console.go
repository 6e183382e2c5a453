package console

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/itohio/daqnode/pkg/output"
)

type ConsoleOutput struct {
	w io.Writer
}

// NewConsole writes one line per channel to w, or to stdout when w is nil.
func NewConsole(w io.Writer) output.Output {
	if w == nil {
		w = os.Stdout
	}
	return &ConsoleOutput{w: w}
}

func (c *ConsoleOutput) Publish(r output.Record) error {
	for _, ch := range r.Channels {
		_, err := fmt.Fprintf(c.w, "%s channel=%d samples=%d mean_mv=%.6f class=%d scores=%v\n",
			r.Timestamp.Format(time.RFC3339), ch.Channel, len(ch.Raw), ch.Mean(), ch.Class, ch.Scores)
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *ConsoleOutput) Close() error { return nil }
