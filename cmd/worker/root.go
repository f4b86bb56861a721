package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	cmdUtil "github.com/pubkey/storagebench/cmd/util"
	"github.com/pubkey/storagebench/rpc/common"
	"github.com/pubkey/storagebench/rpc/transport"
	"github.com/pubkey/storagebench/rpc/transport/stdio"
	"github.com/pubkey/storagebench/rpc/transport/tcp"
	"github.com/pubkey/storagebench/rpc/transport/unix"
	"github.com/pubkey/storagebench/rpc/worker"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	workerCmdConfig = &common.WorkerConfig{}
	WorkerCmd       = &cobra.Command{
		Use:   "worker",
		Short: "Host one backend behind the worker protocol",
		Long: `Host exactly one backend and answer call envelopes until the proxy disconnects.
Without --listen the worker serves over stdin/stdout and logs to stderr, this is how
the process-* backends of the bench command spawn it. With --listen unix:/path or
tcp:host:port it accepts proxy connections until interrupted.
Every flag can be set via STORAGEBENCH_<flag> (e.g. STORAGEBENCH_BACKEND=kvmap).`,
		PreRunE:      processConfig,
		RunE:         run,
		SilenceUsage: true,
	}
)

func init() {
	key := "backend"
	WorkerCmd.Flags().String(key, "kvmap", cmdUtil.WrapString("Backend to host, one of the names listed by 'storagebench bench --help'"))

	key = "name"
	WorkerCmd.Flags().String(key, "", cmdUtil.WrapString("Resource name of the hosted adapter (default: the backend name)"))

	key = "data-dir"
	WorkerCmd.Flags().String(key, "", cmdUtil.WrapString("Parent directory of file based backends (default: <tmp>/storagebench)"))

	key = "listen"
	WorkerCmd.Flags().String(key, "stdio", cmdUtil.WrapString("Where to serve: stdio, unix:/path/to.sock or tcp:host:port"))

	key = "shard"
	WorkerCmd.Flags().Uint64(key, 0, cmdUtil.WrapString("Shard id the backend is hosted under"))

	key = "max-in-flight"
	WorkerCmd.Flags().Int(key, worker.DefaultMaxInFlight, cmdUtil.WrapString("Maximum number of calls executed concurrently per connection"))

	key = "log-level"
	WorkerCmd.Flags().String(key, "info", cmdUtil.WrapString("Level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the flags and environment variables into the worker configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}

	listen, err := common.ParseEndpoint(viper.GetString("listen"))
	if err != nil {
		return err
	}

	workerCmdConfig.Backend = viper.GetString("backend")
	workerCmdConfig.Name = viper.GetString("name")
	if workerCmdConfig.Name == "" {
		workerCmdConfig.Name = workerCmdConfig.Backend
	}
	workerCmdConfig.DataDir = viper.GetString("data-dir")
	workerCmdConfig.Listen = listen
	workerCmdConfig.ShardID = viper.GetUint64("shard")
	workerCmdConfig.Serializer = viper.GetString("serializer")
	workerCmdConfig.MaxInFlight = viper.GetInt("max-in-flight")
	workerCmdConfig.LogLevel = viper.GetString("log-level")

	// frames own stdout in stdio mode
	if listen.IsStdio() {
		common.SetLogOutput(os.Stderr)
	}
	return common.InitLoggers(workerCmdConfig.LogLevel)
}

func run(_ *cobra.Command, _ []string) error {
	conf := workerCmdConfig

	ser, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}

	a, err := cmdUtil.NewBackend(conf.Backend, cmdUtil.BackendOptions{
		Name:       conf.Name,
		DataDir:    conf.DataDir,
		Serializer: conf.Serializer,
		LogLevel:   conf.LogLevel,
	})
	if err != nil {
		return err
	}

	exec := worker.NewExecutor(ser, conf.MaxInFlight)
	exec.Host(conf.ShardID, a)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if conf.Listen.IsStdio() {
		return exec.Serve(ctx, stdio.ServerConn())
	}

	fmt.Fprintln(os.Stderr, conf.String())

	var l transport.IListener
	switch conf.Listen.Network {
	case "unix":
		l, err = unix.Listen(conf.Listen.Address)
	case "tcp":
		l, err = tcp.Listen(conf.Listen.Address)
	default:
		err = fmt.Errorf("can't listen on %s", conf.Listen)
	}
	if err != nil {
		return err
	}
	return exec.ListenAndServe(ctx, l)
}
