package cli

import (
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rcliao/hybrid-memory/internal/api"
	"github.com/rcliao/hybrid-memory/internal/scheduler"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with background maintenance",
		Long: "Serve the administrative HTTP API and Prometheus metrics, evicting idle sessions, " +
			"reclaiming aged memories and repairing indexes in the background.",
		Run: runServe,
	}

	cmd.Flags().String("addr", "", "Listen address (default: server.host:server.port)")

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	addr, _ := cmd.Flags().GetString("addr")
	ctx := cmd.Context()

	a, err := openApp(ctx)
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	if addr == "" {
		addr = net.JoinHostPort(a.cfg.Server.Host, strconv.Itoa(a.cfg.Server.Port))
	}

	if a.cfg.Scheduler.Enabled {
		opts := scheduler.Options{
			EvictInterval:  a.cfg.Scheduler.EvictInterval,
			RepairInterval: a.cfg.Scheduler.RepairInterval,
		}
		if a.cfg.LongTerm.ForgettingEnabled {
			reclaim := reclaimOptions(a.cfg)
			opts.ReclaimInterval = a.cfg.Scheduler.ReclaimInterval
			opts.Reclaim = &reclaim
		}
		sched, err := scheduler.New(a.manager, opts, a.log)
		if err != nil {
			exitErr("scheduler", err)
		}
		sched.Start()
		defer func() {
			if err := sched.Stop(); err != nil {
				a.log.WithError(err).Warn("scheduler shutdown failed")
			}
		}()
	}

	metricsPath := ""
	if a.cfg.Metrics.Enabled {
		metricsPath = a.cfg.Metrics.Path
	}
	srv := api.NewServer(a.manager, a.metrics, api.Options{
		Addr:        addr,
		MetricsPath: metricsPath,
		Reclaim:     reclaimOptions(a.cfg),
	}, a.log)

	if err := srv.Serve(ctx); err != nil {
		exitErr(fmt.Sprintf("serve %s", addr), err)
	}
}
