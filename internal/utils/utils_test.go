package utils

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestSplitJpeg(t *testing.T) {
	// Construct a stream containing: [Garbage] [JPEG] [Garbage]
	// SOI (Start of Image): FF D8
	// EOI (End of Image):   FF D9

	jpegData := []byte{0xFF, 0xD8, 0x01, 0x02, 0x03, 0xFF, 0xD9}

	streamData := []byte{0x00, 0x00} // Garbage at start
	streamData = append(streamData, jpegData...)
	streamData = append(streamData, []byte{0x00, 0x00}...) // Garbage at end

	scanner := bufio.NewScanner(bytes.NewReader(streamData))
	scanner.Split(SplitJpeg)

	if !scanner.Scan() {
		t.Fatal("Expected to find a token, got EOF")
	}

	if !bytes.Equal(scanner.Bytes(), jpegData) {
		t.Errorf("Expected %X, got %X", jpegData, scanner.Bytes())
	}

	// The trailing garbage is not a JPEG
	if scanner.Scan() {
		t.Error("Expected only one token, found more")
	}
}

func TestSplitJpeg_BackToBackFrames(t *testing.T) {
	first := []byte{0xFF, 0xD8, 0xAA, 0xFF, 0xD9}
	second := []byte{0xFF, 0xD8, 0xBB, 0xCC, 0xFF, 0xD9}
	stream := append(append([]byte{}, first...), second...)

	scanner := bufio.NewScanner(bytes.NewReader(stream))
	scanner.Split(SplitJpeg)

	var got [][]byte
	for scanner.Scan() {
		got = append(got, append([]byte{}, scanner.Bytes()...))
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 frames, got %d", len(got))
	}
	if !bytes.Equal(got[0], first) || !bytes.Equal(got[1], second) {
		t.Errorf("Frames split incorrectly: %X", got)
	}
}

func TestNewFFmpegCaptureCmd(t *testing.T) {
	tests := []struct {
		name     string
		format   string
		width    int
		contains []string
		absent   []string
	}{
		{
			name:     "v4l2 with width",
			format:   "v4l2",
			width:    640,
			contains: []string{"-f v4l2", "-i /dev/video0", "scale=640:-2", "image2pipe", "mjpeg"},
		},
		{
			name:     "no format, native width",
			format:   "",
			width:    0,
			contains: []string{"-i /dev/video0", "image2pipe"},
			absent:   []string{"-f v4l2", "scale="},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewFFmpegCaptureCmd(context.Background(), tt.format, "/dev/video0", tt.width)
			line := strings.Join(cmd.Args, " ")
			for _, want := range tt.contains {
				if !strings.Contains(line, want) {
					t.Errorf("expected %q in %q", want, line)
				}
			}
			for _, bad := range tt.absent {
				if strings.Contains(line, bad) {
					t.Errorf("did not expect %q in %q", bad, line)
				}
			}
			if cmd.Stderr == nil {
				t.Error("expected stderr buffer to be attached")
			}
		})
	}
}
