package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aweris/layerpack"
	"github.com/aweris/layerpack/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve process requests over HTTP",
	Long:  "Accept GET or POST /?bucket=<bucket>&bucket_key=<key> and store the archive at <key>/<archive.name> in that bucket.",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	flags := serveCmd.Flags()
	flags.String("addr", "", "listen address (default: :8080)")
	flags.Int64("max-inflight", 0, "maximum concurrent process requests (default: 4)")
	flags.Float64("rps", 0, "maximum accepted requests per second, 0 for unlimited")

	viper.BindPFlag("serve.addr", flags.Lookup("addr"))
	viper.BindPFlag("serve.max_inflight", flags.Lookup("max-inflight"))
	viper.BindPFlag("serve.rps", flags.Lookup("rps"))
}

func runServe(cmd *cobra.Command, _ []string) (err error) {
	provider, err := newProvider()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := provider.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	logger := newLogger()
	opts, err := pipelineOptions(logger)
	if err != nil {
		return err
	}

	proc := server.ProcessorFunc(func(ctx context.Context, bucket, src, dst string) (*layerpack.Result, error) {
		st, err := provider.Store(ctx, bucket)
		if err != nil {
			return nil, err
		}
		return layerpack.New(st, layerpack.FrameDecoder, opts...).Process(ctx, src, dst)
	})

	srv := server.New(proc, server.Config{
		MaxInFlight: viper.GetInt64("serve.max_inflight"),
		RPS:         viper.GetFloat64("serve.rps"),
		ArchiveName: viper.GetString("archive.name"),
	}, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx, viper.GetString("serve.addr"))
}
