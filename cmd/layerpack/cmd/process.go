package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aweris/layerpack"
)

var processCmd = &cobra.Command{
	Use:   "process <source-key> [destination-key]",
	Short: "Process one stored asset",
	Long:  "Decode the object at source-key into layers, encode them as PNG and store the zip archive at destination-key (default: <source-key>/<archive.name>).",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) (err error) {
	src := args[0]
	dst := layerpack.DestinationKey(src, viper.GetString("archive.name"))
	if len(args) > 1 {
		dst = args[1]
	}

	provider, err := newProvider()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := provider.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	st, err := provider.Store(cmd.Context(), "")
	if err != nil {
		return err
	}

	logger := newLogger()
	opts, err := pipelineOptions(logger)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Processing %s...\n", src)

	res, err := layerpack.New(st, layerpack.FrameDecoder, opts...).Process(cmd.Context(), src, dst)
	if err != nil {
		return fmt.Errorf("process failed: %w", err)
	}

	fmt.Printf("%s\t%d entries\t%d bytes\t%s\n", res.Key, res.Entries, res.Size, res.Digest)
	return nil
}
