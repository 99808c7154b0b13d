package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/flowstack-dev/flowstack/internal/metrics"
	"github.com/flowstack-dev/flowstack/internal/stack"
	"github.com/flowstack-dev/flowstack/internal/supervise"
	"github.com/flowstack-dev/flowstack/internal/version"
)

var (
	manifestPath string
	verbose      bool

	okMark   = color.New(color.FgGreen).SprintFunc()
	failMark = color.New(color.FgRed).SprintFunc()
)

func main() {
	root := &cobra.Command{
		Use:           "flowstack",
		Short:         "Install and operate the flow monitoring stack",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := zerolog.InfoLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
				Level(level).With().Timestamp().Logger()
		},
	}
	root.PersistentFlags().StringVar(&manifestPath, "manifest", stack.DefaultManifestPath, "stack manifest file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(installCmd(), startCmd(), stopCmd(), restartCmd(), statusCmd(),
		pointCmd(), prepareCmd(), monitorCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", failMark("[-]"), err)
		os.Exit(1)
	}
}

func orchestrator() (*stack.Orchestrator, error) {
	return stack.New(manifestPath)
}

func installCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "install", Short: "Install a stack role on this host"}

	collector := &cobra.Command{
		Use:   "collector",
		Short: "Install the flow collector (Logstash with the ElastiFlow pipelines)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := orchestrator()
			if err != nil {
				return err
			}
			if err := o.InstallCollector(); err != nil {
				return err
			}
			fmt.Printf("%s collector installed\n", okMark("[+]"))
			return nil
		},
	}

	var iface, label, target string
	agent := &cobra.Command{
		Use:   "agent",
		Short: "Install the monitoring agent (Zeek and Filebeat)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := orchestrator()
			if err != nil {
				return err
			}
			if err := o.InstallAgent(iface, label, target); err != nil {
				return err
			}
			fmt.Printf("%s agent installed\n", okMark("[+]"))
			return nil
		},
	}
	agent.Flags().StringVar(&iface, "iface", "eth0", "network interface to capture on")
	agent.Flags().StringVar(&label, "label", "", "tag attached to every shipped event")
	agent.Flags().StringVar(&target, "target", "", "collector host:port to ship to")
	_ = agent.MarkFlagRequired("label")
	_ = agent.MarkFlagRequired("target")

	cmd.AddCommand(collector, agent)
	return cmd
}

func roleCmd(use, short string, collectorFn func(*stack.Orchestrator) error, agentFn func(*stack.Orchestrator) error) *cobra.Command {
	return &cobra.Command{
		Use:       use + " {collector|agent}",
		Short:     short,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"collector", "agent"},
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := orchestrator()
			if err != nil {
				return err
			}
			if args[0] == "collector" {
				return collectorFn(o)
			}
			return agentFn(o)
		},
	}
}

func startCmd() *cobra.Command {
	return roleCmd("start", "Start a stack role",
		(*stack.Orchestrator).StartCollector,
		(*stack.Orchestrator).StartAgent)
}

func stopCmd() *cobra.Command {
	return roleCmd("stop", "Stop a stack role",
		(*stack.Orchestrator).StopCollector,
		(*stack.Orchestrator).StopAgent)
}

func restartCmd() *cobra.Command {
	return roleCmd("restart", "Restart a stack role",
		(*stack.Orchestrator).RestartCollector,
		func(o *stack.Orchestrator) error {
			if err := o.StopAgent(); err != nil {
				return err
			}
			return o.StartAgent()
		})
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "status {collector|agent}",
		Short:     "Report a stack role's state",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"collector", "agent"},
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := orchestrator()
			if err != nil {
				return err
			}
			if args[0] == "collector" {
				st, err := o.CollectorStatus()
				if err != nil {
					return err
				}
				printRunning(st.Running)
				if err := printJSON(st); err != nil {
					return err
				}
				prof, err := o.CollectorProfile()
				if err != nil {
					return err
				}
				return printJSON(prof)
			}
			st := o.StatusAgent()
			printRunning(st.Zeek.Running && st.Filebeat.Running)
			return printJSON(st)
		},
	}
}

func printRunning(running bool) {
	if running {
		fmt.Printf("%s running\n", okMark("[+]"))
	} else {
		fmt.Printf("%s not running\n", failMark("[-]"))
	}
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func pointCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "point <host> <port>",
		Short: "Repoint the agent's shipper at a different collector",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := strconv.Atoi(args[1])
			if err != nil || port < 1 || port > 65535 {
				return fmt.Errorf("invalid port %q", args[1])
			}
			o, err := orchestrator()
			if err != nil {
				return err
			}
			if err := o.PointAgent(args[0], port); err != nil {
				return err
			}
			fmt.Printf("%s agent now points at %s:%d (restart to apply)\n", okMark("[+]"), args[0], port)
			return nil
		},
	}
}

func prepareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prepare",
		Short: "Install the agent's kernel and build prerequisites (reboot afterwards)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := orchestrator()
			if err != nil {
				return err
			}
			return o.PrepareAgent()
		},
	}
}

func monitorCmd() *cobra.Command {
	var addr string
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Serve Prometheus metrics for the supervised services",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := orchestrator()
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			go watchServices(ctx, o, interval)

			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				fmt.Fprintf(w, `{"status":"ok","time_utc":"%s"}`, time.Now().UTC().Format(time.RFC3339))
			})
			srv := &http.Server{Addr: addr, Handler: mux}
			go func() {
				<-ctx.Done()
				shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutCancel()
				_ = srv.Shutdown(shutCtx)
			}()
			log.Info().Str("addr", addr).Msg("monitor listening")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":9090", "listen address")
	cmd.Flags().DurationVar(&interval, "interval", 10*time.Second, "service poll interval")
	return cmd
}

// watchServices refreshes the running gauges every interval and keeps a
// CPU/RSS sampler attached to each live supervised PID.
func watchServices(ctx context.Context, o *stack.Orchestrator, interval time.Duration) {
	sampling := map[string]int{}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if st, err := o.CollectorStatus(); err == nil {
			track(ctx, "logstash", st, sampling, interval)
		}
		agent := o.StatusAgent()
		metrics.SetRunning("zeek", agent.Zeek.Running)
		track(ctx, "filebeat", agent.Filebeat, sampling, interval)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func track(ctx context.Context, name string, st supervise.Status, sampling map[string]int, interval time.Duration) {
	metrics.SetRunning(name, st.Running)
	if !st.Running {
		delete(sampling, name)
		return
	}
	if sampling[name] == st.PID {
		return
	}
	sampling[name] = st.PID
	go metrics.SampleProcess(ctx, name, st.PID, interval)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("flowstack %s (%s)\n", version.Version, version.Commit)
		},
	}
}
