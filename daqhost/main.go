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

	"github.com/itohio/daqnode/pkg/config"
	"github.com/itohio/daqnode/pkg/link"
	"github.com/itohio/daqnode/pkg/output"
	"github.com/itohio/daqnode/pkg/output/console"
	"github.com/itohio/daqnode/pkg/output/mqtt"
)

func main() {
	var (
		configFlag = flag.String("config", "config.yaml", "Configuration file path")
		portFlag   = flag.String("p", "", "Serial port override (e.g., /dev/ttyACM0)")
		inFlag     = flag.String("in", "", "Read frames from this file instead of the serial port")
		listFlag   = flag.Bool("list-ports", false, "List serial ports and exit")
	)
	flag.Parse()

	if *listFlag {
		ports, err := link.Ports()
		if err != nil {
			log.Fatalf("Failed to list ports: %v", err)
		}
		for _, p := range ports {
			fmt.Println(p.Name)
		}
		return
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *portFlag != "" {
		cfg.Host.Port = *portFlag
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	outs, err := buildOutputs(cfg.Host.Outputs)
	if err != nil {
		log.Fatalf("Failed to create outputs: %v", err)
	}
	defer func() {
		for _, o := range outs {
			o.Close()
		}
	}()

	src, err := openInput(cfg, *inFlag)
	if err != nil {
		log.Fatalf("Failed to open link: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rx := link.NewReceiver(src, 0)
	done := make(chan error, 1)
	go func() { done <- rx.Run(ctx) }()

	for f := range rx.Frames() {
		rec := output.NewRecord(time.Now(), f.Batch, cfg.Conversion)
		for _, o := range outs {
			if err := o.Publish(rec); err != nil {
				log.Printf("output error: %v", err)
			}
		}
	}

	if err := <-done; err != nil && ctx.Err() == nil {
		log.Printf("daqhost: %v", err)
	}
	s := rx.Stats()
	log.Printf("daqhost: frames=%d corrupt=%d dropped=%d skipped_bytes=%d", s.Frames, s.Corrupt, s.Dropped, s.Skipped)
}

func buildOutputs(cfgs []config.OutputConfig) ([]output.Output, error) {
	var outs []output.Output
	for _, oc := range cfgs {
		switch oc.Type {
		case "console":
			outs = append(outs, console.NewConsole(nil))
		case "mqtt":
			mc := mqtt.DefaultConfig()
			if oc.MQTT != nil {
				mc = *oc.MQTT
			}
			o, err := mqtt.NewMQTT(mc)
			if err != nil {
				return nil, err
			}
			outs = append(outs, o)
		default:
			return nil, fmt.Errorf("unknown output type %q", oc.Type)
		}
	}
	return outs, nil
}

func openInput(cfg *config.Config, path string) (io.Reader, error) {
	if path == "-" {
		return os.Stdin, nil
	}
	if path != "" {
		return os.Open(path)
	}
	return link.OpenSerial(cfg.Host.Port, cfg.Host.Baud)
}
