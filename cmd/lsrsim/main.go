// Binary lsrsim runs a simulated label switching router, streaming the state
// of its tables over gNMI and serving its forwarding entries over gRIBI.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/golang/glog"
	"github.com/openconfig/lsrsim/config"
	"github.com/openconfig/lsrsim/device"
	"golang.org/x/sync/errgroup"
)

var (
	certFile = flag.String("cert", "", "cert is the path to the server TLS certificate file")
	keyFile  = flag.String("key", "", "key is the path to the server TLS key file")

	configFile = flag.String("config", "", "config is the path to the YAML startup configuration of the router")

	gnmiHost  = flag.String("gnmi_host", "localhost", "gnmi_host is the host that the gNMI server listens on")
	gnmiPort  = flag.Int("gnmi_port", 0, "gnmi_port is the port that the gNMI server listens on, 0 picks a free port")
	gribiHost = flag.String("gribi_host", "localhost", "gribi_host is the host that the gRIBI server listens on")
	gribiPort = flag.Int("gribi_port", 0, "gribi_port is the port that the gRIBI server listens on, 0 picks a free port")

	statsInterval = flag.Duration("stats_interval", time.Minute, "stats_interval is the interval at which table statistics are logged, 0 disables logging")
)

func main() {
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts := []device.DevOpt{
		device.GNMIAddr(*gnmiHost, *gnmiPort),
		device.GRIBIPort(*gribiHost, *gribiPort),
	}

	switch {
	case *certFile != "" && *keyFile != "":
		creds, err := device.TLSCredsFromFile(*certFile, *keyFile)
		if err != nil {
			log.Exitf("cannot initialise TLS, got: %v", err)
		}
		opts = append(opts, creds)
	case *certFile != "" || *keyFile != "":
		log.Exitf("must specify both a TLS certificate and key file")
	default:
		log.Warningf("no TLS certificate specified, serving without TLS")
	}

	if *configFile != "" {
		cfg, err := config.Load(*configFile)
		if err != nil {
			log.Exitf("cannot load configuration, %v", err)
		}
		opts = append(opts, device.DeviceConfig(cfg))
	}

	d, stop, err := device.New(ctx, opts...)
	if err != nil {
		log.Exitf("cannot start device, %v", err)
	}
	defer stop()
	log.Infof("%s listening on:\n\tgRIBI: %s\n\tgNMI: %s", d.Router(), d.GRIBIAddr(), d.GNMIAddr())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if *statsInterval <= 0 {
			return nil
		}
		t := time.NewTicker(*statsInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
				s := d.Router().LFIB.Stats()
				log.Infof("events: %d, transitions: %d, XC: %+v, NHLFE: %+v, ILM: %+v", s.EventsProcessed, s.Transitions, s.XC, s.NHLFE, s.ILM)
				log.Infof("telemetry: %+v", d.TelemetryStats())
			}
		}
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Infof("shutting down %s", d.Router())
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Errorf("lsrsim exited with error, %v", err)
	}
}
