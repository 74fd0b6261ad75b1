package capture

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

// FFmpeg extracts frames and clips from the tail of a live source.
type FFmpeg struct {
	ffmpeg string
}

func NewFFmpeg(ffmpegPath string) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpeg{ffmpeg: ffmpegPath}
}

// Still writes one JPEG frame taken offset before the end of source.
func (f *FFmpeg) Still(ctx context.Context, source string, offset time.Duration, outJPG string) error {
	cmd := exec.CommandContext(ctx, f.ffmpeg,
		"-y",
		"-sseof", "-"+fmtSeconds(offset),
		"-i", source,
		"-frames:v", "1",
		"-q:v", "2",
		outJPG,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg still: %w\n%s", err, string(b))
	}
	return nil
}

// Clip writes a short looping GIF starting offset before the end of source.
func (f *FFmpeg) Clip(ctx context.Context, source string, offset, length time.Duration, outGIF string) error {
	cmd := exec.CommandContext(ctx, f.ffmpeg,
		"-y",
		"-sseof", "-"+fmtSeconds(offset),
		"-t", fmtSeconds(length),
		"-i", source,
		"-vf", "fps=10,scale=480:-1:flags=lanczos,split[a][b];[a]palettegen[p];[b][p]paletteuse",
		"-loop", "0",
		outGIF,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg clip: %w\n%s", err, string(b))
	}
	return nil
}

func fmtSeconds(d time.Duration) string {
	sec := float64(d) / float64(time.Second)
	return strconv.FormatFloat(sec, 'f', 3, 64)
}
