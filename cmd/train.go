package cmd

import (
	"fmt"
	"os"

	"github.com/andresmejia3/rollcall/internal/enroll"
	"github.com/andresmejia3/rollcall/internal/utils"
	"github.com/spf13/cobra"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Ask the backend to rebuild its model from the stored samples",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		c, err := newClient()
		if err != nil {
			utils.ShowError("Backend client setup failed", err, nil)
			return err
		}

		out := cmd.OutOrStdout()
		pipeline := enroll.New(c, enroll.SinkFunc(func(s enroll.Status) {
			fmt.Fprintln(out, formatStatus(s))
		}), nil, enroll.Config{})

		fmt.Fprintf(os.Stderr, "🧠 Training on %s\n", c.BaseURL())
		rep, err := pipeline.Train(cmd.Context())
		if err != nil {
			return err
		}
		if !rep.Trained {
			return fmt.Errorf("training failed: %s", rep.Final.Message)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(trainCmd)
}
