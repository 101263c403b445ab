package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"suitcase/internal/endpoint"
	"suitcase/internal/probe"
)

func (a *app) newProbeCmd() *cobra.Command {
	var (
		ws    bool
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Measure the latency of every endpoint",
		Long: `Probes every endpoint once, concurrently, and prints them fastest first.
With --watch the endpoints are probed on the configured interval until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.newClient()
			if err != nil {
				return err
			}
			defer client.Close()

			if watch {
				monitor := probe.NewMonitor(client.Endpoints(), probe.MonitorConfig{
					Interval: a.cfg.GetProbeIntervalDuration(),
					Timeout:  a.cfg.GetProbeTimeoutDuration(),
					Metrics:  a.metrics,
					Logger:   a.logger,
				})
				monitor.Start()
				<-cmd.Context().Done()
				monitor.Stop()
				return nil
			}

			var samples []probe.Sample[*endpoint.Endpoint]
			if ws {
				samples, err = client.ProbeWSLatency(cmd.Context())
				if err != nil {
					return err
				}
			} else {
				samples = client.ProbeLatency(cmd.Context())
			}

			probe.Sort(samples)
			printSamples(cmd, samples, ws)

			_, err = probe.Fastest(samples)
			return err
		},
	}

	cmd.Flags().BoolVar(&ws, "ws", false, "probe the WebSocket handshake instead of an RPC request")
	cmd.Flags().BoolVar(&watch, "watch", false, "keep probing on the configured interval")

	return cmd
}

func printSamples(cmd *cobra.Command, samples []probe.Sample[*endpoint.Endpoint], ws bool) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "ENDPOINT\tURL\tLATENCY\tSTATUS")
	for _, s := range samples {
		url := s.Endpoint.RPCURL()
		if ws {
			url = s.Endpoint.WSURL()
		}

		if !s.OK() {
			fmt.Fprintf(w, "%s\t%s\t-\t%v\n", s.Endpoint.Name(), url, s.Err)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\tok\n", s.Endpoint.Name(), url, s.Latency.Round(time.Millisecond))
	}
}
