package console

import (
	"bytes"
	"testing"
	"time"

	"github.com/itohio/daqnode/pkg/output"
	"github.com/itohio/daqnode/pkg/sample"
)

func TestConsolePublish(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)
	ts := time.Date(2025, 9, 19, 14, 41, 54, 0, time.UTC)

	b := sample.SendingBatch{
		Raw:    [sample.NumChannels][]sample.Code{{{0x80, 0, 0}, {0x80, 0, 0}}},
		Scores: [sample.NumChannels][]float32{{0.25, 0.75}},
	}
	if err := c.Publish(output.NewRecord(ts, b, sample.DefaultConversion())); err != nil {
		t.Fatal(err)
	}

	want := "2025-09-19T14:41:54Z channel=0 samples=2 mean_mv=0.000000 class=1 scores=[0.25 0.75]\n" +
		"2025-09-19T14:41:54Z channel=1 samples=0 mean_mv=0.000000 class=-1 scores=[]\n"
	if buf.String() != want {
		t.Fatalf("console output mismatch:\n got: %q\nwant: %q", buf.String(), want)
	}
}
