// Package node assembles the acquisition, processing and sending stages into
// a running node.
package node

import (
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/itohio/daqnode/pkg/acquire"
	"github.com/itohio/daqnode/pkg/ad7124"
	"github.com/itohio/daqnode/pkg/config"
	"github.com/itohio/daqnode/pkg/link"
	"github.com/itohio/daqnode/pkg/mailbox"
	"github.com/itohio/daqnode/pkg/model"
	"github.com/itohio/daqnode/pkg/monitoring"
	"github.com/itohio/daqnode/pkg/process"
	"github.com/itohio/daqnode/pkg/sample"
	"github.com/itohio/daqnode/pkg/timeutil"
)

// Options are the node's external dependencies.
type Options struct {
	Config    *config.Config
	Bus       ad7124.Bus
	DataReady ad7124.DataReady
	Link      io.Writer
	Model     model.Model    // nil loads the model described by Config
	Clock     timeutil.Clock // nil uses the real clock
}

// Stats collects the counters of every stage.
type Stats struct {
	Acquire  acquire.Stats
	Process  process.Stats
	Sender   link.SenderStats
	Readings mailbox.Stats
	Sendings mailbox.Stats
}

// Node owns the converter driver, both mailboxes and the three stages.
type Node struct {
	cfg      *config.Config
	driver   *ad7124.Driver
	readings *mailbox.Mailbox[sample.ReadingBatch]
	sendings *mailbox.Mailbox[sample.SendingBatch]
	acquire  *acquire.Loop
	process  *process.Stage
	sender   *link.Sender
}

// New builds a node. Nothing touches the bus until Run.
func New(opts Options) (*Node, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if opts.Bus == nil || opts.DataReady == nil || opts.Link == nil {
		return nil, errors.New("bus, data-ready and link are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	m := opts.Model
	if m == nil {
		var err error
		if m, err = LoadModel(cfg); err != nil {
			return nil, err
		}
	}

	n := &Node{
		cfg:      cfg,
		driver:   ad7124.New(opts.Bus, cfg.ADCOptions()),
		readings: mailbox.New[sample.ReadingBatch](),
		sendings: mailbox.New[sample.SendingBatch](),
	}

	var err error
	n.acquire, err = acquire.New(opts.DataReady, n.driver, n.readings, cfg.AcquireConfig(), opts.Clock)
	if err != nil {
		return nil, err
	}
	n.process, err = process.New(m, n.readings, n.sendings, cfg.ProcessConfig())
	if err != nil {
		return nil, err
	}
	n.sender = link.NewSender(n.sendings, opts.Link, cfg.Link.RetryDelay)
	return n, nil
}

// LoadModel returns the configured model, or a uniform one when no weights
// file is set.
func LoadModel(cfg *config.Config) (model.Model, error) {
	inputs := cfg.Acquisition.VectorSize
	if cfg.Model.WeightsFile == "" {
		return model.NewZero(inputs, cfg.Model.Classes)
	}

	d, err := model.LoadDense(cfg.Model.WeightsFile)
	if err != nil {
		return nil, err
	}
	if d.Inputs() != inputs {
		return nil, fmt.Errorf("model expects %d inputs, vector size is %d", d.Inputs(), inputs)
	}
	return d, nil
}

// Stats returns a snapshot of all counters.
func (n *Node) Stats() Stats {
	return Stats{
		Acquire:  n.acquire.Stats(),
		Process:  n.process.Stats(),
		Sender:   n.sender.Stats(),
		Readings: n.readings.Stats(),
		Sendings: n.sendings.Stats(),
	}
}

// Run initializes the converter and runs the stages until ctx ends or one of
// them fails. Cancellation is a clean stop.
func (n *Node) Run(ctx context.Context) error {
	report, err := n.driver.Init(n.cfg.EnabledChannels())
	if err != nil {
		return fmt.Errorf("failed to initialize converter: %w", err)
	}
	if bad := report.Mismatches(); len(bad) > 0 {
		monitoring.Logf("node: %d of %d register writes did not read back", len(bad), len(report.Checks))
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return n.acquire.Run(ctx) })
	g.Go(func() error { return n.process.Run(ctx) })
	g.Go(func() error { return n.sender.Run(ctx) })

	err = g.Wait()
	n.readings.Close()
	n.sendings.Close()

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
