package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/andresmejia3/rollcall/internal/utils"
	"github.com/spf13/cobra"
)

var resetYes bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop every journaled session entry",
	Long:  "Clears the local session journal. Attendance marks and enrollment samples live on the backend and are not touched.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		j, err := openJournal(cmd.Context(), true)
		if err != nil {
			utils.ShowError("Journal unavailable", err, nil)
			return err
		}

		if !resetYes && !confirm(bufio.NewReader(os.Stdin), "⚠️  Are you sure you want to DROP all journal entries?") {
			fmt.Println("Aborted.")
			return nil
		}

		fmt.Println("🗑️  Clearing Journal...")
		if err := j.Reset(cmd.Context()); err != nil {
			utils.ShowError("Failed to reset journal", err, nil)
			return err
		}
		fmt.Println("✨ Journal Reset Complete.")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Skip the confirmation prompt")
	rootCmd.AddCommand(resetCmd)
}

func confirm(r *bufio.Reader, prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}
