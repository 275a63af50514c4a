// Command bloomd-netcore hosts the networking core against a trivial
// line-oriented handler, standing in for the Bloom-filter command parser
// and storage manager that this package intentionally knows nothing
// about. It exists to exercise Init/StartWorker/Shutdown end to end from
// a real process, not as a usable bloomd replacement.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/armon/bloomd-netcore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		tcpPort    int
		udpPort    int
		workers    int
		poolSize   int
	)

	cmd := &cobra.Command{
		Use:   "bloomd-netcore",
		Short: "run the bloomd networking core with a line-echo command handler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath, tcpPort, udpPort, workers)
			if err != nil {
				return err
			}
			return run(cfg, poolSize)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "path to a YAML config file (optional; defaults are used otherwise)")
	flags.IntVar(&tcpPort, "tcp-port", 0, "override the configured TCP port (0 = use config/default)")
	flags.IntVar(&udpPort, "udp-port", 0, "override the configured UDP port (0 = use config/default)")
	flags.IntVar(&workers, "workers", 0, "override the configured worker thread count (0 = use config/default)")
	flags.IntVar(&poolSize, "handler-pool-size", 64, "bounded goroutine pool size for offloaded command handling")

	return cmd
}

func loadConfig(path string, tcpPort, udpPort, workers int) (*netcore.Config, error) {
	var cfg *netcore.Config
	if path != "" {
		loaded, err := netcore.LoadConfig(path)
		if err != nil {
			return nil, errors.Wrap(err, "load config")
		}
		cfg = loaded
	} else {
		cfg = netcore.DefaultConfig()
	}

	if tcpPort != 0 {
		cfg.TCPPort = tcpPort
	}
	if udpPort != 0 {
		cfg.UDPPort = udpPort
	}
	if workers != 0 {
		cfg.WorkerThreads = workers
	}
	return cfg, nil
}

func run(cfg *netcore.Config, poolSize int) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return errors.Wrap(err, "build logger")
	}
	defer logger.Sync()

	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return errors.Wrap(err, "build handler pool")
	}
	defer pool.Release()

	handler := netcore.HandlerFunc(func(conn *netcore.Conn) {
		// Each frame is offloaded onto the bounded pool so that a slow
		// or blocking command handler can't stall the worker that read
		// it off the socket; a real command layer would replace
		// echoLine with a Bloom-filter command dispatch.
		for {
			line, alloc, ok := conn.Scan('\n')
			if !ok {
				return
			}
			frame := line
			if !alloc {
				frame = append([]byte(nil), line...)
			}
			submitErr := pool.Submit(func() {
				echoLine(conn, frame)
			})
			if submitErr != nil {
				logger.Warn("handler pool rejected frame, handling inline", zap.Error(submitErr))
				echoLine(conn, frame)
			}
		}
	})

	ctx, err := netcore.Init(cfg, handler, logger)
	if err != nil {
		return errors.Wrap(err, "init networking core")
	}

	for i := 0; i < cfg.WorkerThreads; i++ {
		go ctx.StartWorker()
	}
	logger.Info("bloomd-netcore listening",
		zap.Int("tcp_port", cfg.TCPPort),
		zap.Int("udp_port", cfg.UDPPort),
		zap.Int("worker_threads", cfg.WorkerThreads),
	)

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	logger.Info("shutting down")
	ctx.Shutdown()
	return nil
}

// echoLine answers a single framed command with the same bytes plus a
// trailing newline. It stands in for command dispatch into a
// Bloom-filter storage manager, which is out of scope for this package.
func echoLine(conn *netcore.Conn, line []byte) {
	reply := make([]byte, len(line)+1)
	copy(reply, line)
	reply[len(line)] = '\n'
	_ = conn.Send([][]byte{reply})
}
