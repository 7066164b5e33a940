package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aweris/layerpack/internal/archive"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <key>",
	Short: "List entries of a stored archive",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) (err error) {
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

	data, err := st.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	entries, err := archive.Read(data)
	if err != nil {
		return err
	}

	for _, e := range entries {
		fmt.Printf("%s\t%d\n", e.Name, len(e.Data))
	}
	if len(entries) == 0 {
		fmt.Println("(no entries)")
	}
	return nil
}
