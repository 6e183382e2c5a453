package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"periph.io/x/conn/v3/physic"

	"github.com/itohio/daqnode/pkg/ad7124"
	"github.com/itohio/daqnode/pkg/config"
	"github.com/itohio/daqnode/pkg/link"
	"github.com/itohio/daqnode/pkg/node"
)

func main() {
	var (
		configFlag = flag.String("config", "config.yaml", "Configuration file path")
		portFlag   = flag.String("p", "", "Serial link port override (e.g., /dev/ttyS0)")
		simFlag    = flag.Bool("sim", false, "Use the simulated converter instead of SPI hardware")
		outFlag    = flag.String("out", "", "Write frames to this file instead of the serial link")
		listFlag   = flag.Bool("list-ports", false, "List serial ports and exit")
		statsFlag  = flag.Duration("stats", 0, "Log pipeline counters at this interval (0 = off)")
	)
	flag.Parse()

	if *listFlag {
		listPorts()
		return
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *portFlag != "" {
		cfg.Link.Port = *portFlag
	}

	opts := node.Options{Config: cfg}

	if *simFlag {
		sim := ad7124.NewSim(cfg.Sim)
		opts.Bus, opts.DataReady = sim, sim
	} else {
		dev, err := ad7124.OpenPeriph(cfg.ADC.SPIPort, physic.Frequency(cfg.ADC.ClockHz)*physic.Hertz, cfg.ADC.DataReadyPin)
		if err != nil {
			log.Fatalf("Failed to open converter: %v", err)
		}
		defer dev.Close()
		opts.Bus, opts.DataReady = dev.Bus, dev.DataReady
	}

	out, err := openOutput(cfg, *outFlag)
	if err != nil {
		log.Fatalf("Failed to open link: %v", err)
	}
	defer out.Close()
	opts.Link = out

	n, err := node.New(opts)
	if err != nil {
		log.Fatalf("Failed to build node: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *statsFlag > 0 {
		go logStats(ctx, n, *statsFlag)
	}

	log.Printf("daqnode: %d means per window, one every %s", cfg.Acquisition.VectorSize, cfg.AcquireConfig().Interval())
	if err := n.Run(ctx); err != nil {
		log.Printf("daqnode: %v", err)
		return
	}
	log.Printf("daqnode: stopped")
}

func openOutput(cfg *config.Config, path string) (io.WriteCloser, error) {
	if path == "-" {
		return os.Stdout, nil
	}
	if path != "" {
		return os.Create(path)
	}
	return link.OpenSerial(cfg.Link.Port, cfg.Link.Baud)
}

func logStats(ctx context.Context, n *node.Node, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := n.Stats()
			log.Printf("daqnode: conversions=%d unknown=%d empty=%d published=%d model_errors=%d frames=%d write_errors=%d",
				s.Acquire.Conversions, s.Acquire.UnknownChannel, s.Acquire.EmptyIntervals, s.Acquire.Published,
				s.Process.ModelErrors, s.Sender.Frames, s.Sender.WriteErrors)
		}
	}
}

func listPorts() {
	ports, err := link.Ports()
	if err != nil {
		log.Fatalf("Failed to list ports: %v", err)
	}
	for _, p := range ports {
		fmt.Println(p.Name)
	}
}
