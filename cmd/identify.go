package cmd

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/andresmejia3/rollcall/internal/client"
	"github.com/andresmejia3/rollcall/internal/encoder"
	"github.com/andresmejia3/rollcall/internal/utils"
	"github.com/spf13/cobra"
)

var identifyQuality float64

var identifyCmd = &cobra.Command{
	Use:   "identify <image_path>",
	Short: "Submit a still image for recognition without marking a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		c, err := newClient()
		if err != nil {
			utils.ShowError("Backend client setup failed", err, nil)
			return err
		}
		return runIdentify(cmd.Context(), c, args[0], identifyQuality, cmd.OutOrStdout())
	},
}

func init() {
	identifyCmd.Flags().Float64VarP(&identifyQuality, "quality", "q", encoder.AttendanceQuality, "JPEG quality (0..1)")
	rootCmd.AddCommand(identifyCmd)
}

type frameSubmitter interface {
	ProcessFrame(ctx context.Context, frame encoder.EncodedFrame) (client.FrameResult, error)
}

func runIdentify(ctx context.Context, c frameSubmitter, imagePath string, quality float64, out io.Writer) error {
	f, err := os.Open(imagePath)
	if err != nil {
		utils.ShowError("Failed to read image file", err, nil)
		return err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		utils.ShowError("Unsupported image", err, nil)
		return err
	}

	fmt.Fprintln(os.Stderr, "🔍 Analyzing face...")
	res, err := c.ProcessFrame(ctx, encoder.Encode(img, quality))
	if err != nil {
		utils.ShowError("Recognition request failed", err, nil)
		return err
	}

	switch r := res.(type) {
	case client.Recognized:
		state := "already marked today"
		if r.Marked {
			state = "marked present"
		}
		fmt.Fprintf(out, "✅ Found Match: %s (ID: %s) conf %.1f, %s\n", r.Name, r.UserID, r.Confidence, state)
	case client.Unknown:
		fmt.Fprintf(out, "❓ Unknown face (conf %.1f)\n", r.Confidence)
	case client.NoFace:
		fmt.Fprintln(out, "❌ No faces detected in the provided image.")
	case client.FrameRejected:
		msg := r.Message
		if msg == "" {
			msg = "server error"
		}
		return fmt.Errorf("backend rejected the image: %s", msg)
	}
	return nil
}
