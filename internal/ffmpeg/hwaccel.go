package ffmpeg

import (
	"context"
	"os/exec"
	"runtime"
	"slices"
	"time"
)

// HWAccel describes the hardware encoder selected for raw-frame encodes.
// When no accelerator works, the software fallback (libx264) is reported
// with Available=false.
type HWAccel struct {
	Encoder   string `json:"encoder"`
	HWAccel   string `json:"hwaccel,omitempty"`
	Available bool   `json:"available"`
}

// hwCandidate pairs an encoder with its hwaccel type and the config name
// used in the priority list.
type hwCandidate struct {
	name    string
	encoder string
	hwaccel string
}

// platformCandidates returns hardware encoder candidates for the current OS.
func platformCandidates() []hwCandidate {
	switch runtime.GOOS {
	case "windows":
		return []hwCandidate{
			{name: "nvenc", encoder: "h264_nvenc", hwaccel: "cuda"},
			{name: "amf", encoder: "h264_amf", hwaccel: "d3d11va"},
			{name: "qsv", encoder: "h264_qsv", hwaccel: "qsv"},
		}
	case "darwin":
		return []hwCandidate{
			{name: "videotoolbox", encoder: "h264_videotoolbox", hwaccel: "videotoolbox"},
		}
	default:
		return []hwCandidate{
			{name: "nvenc", encoder: "h264_nvenc", hwaccel: "cuda"},
			{name: "qsv", encoder: "h264_qsv", hwaccel: "qsv"},
			{name: "vaapi", encoder: "h264_vaapi", hwaccel: "vaapi"},
		}
	}
}

// detectHWAccel picks the first working hardware encoder, honoring the
// configured priority order. An encoder counts as working only when a
// short trial encode succeeds; being listed in -encoders is not enough.
func detectHWAccel(ctx context.Context, ffmpegPath string, encoders []string, priority []string) HWAccel {
	candidates := platformCandidates()

	if len(priority) > 0 {
		ordered := make([]hwCandidate, 0, len(candidates))
		for _, name := range priority {
			for _, c := range candidates {
				if c.name == name {
					ordered = append(ordered, c)
				}
			}
		}
		candidates = ordered
	}

	for _, c := range candidates {
		if len(encoders) > 0 && !slices.Contains(encoders, c.encoder) {
			continue
		}
		if trialEncode(ctx, ffmpegPath, c.encoder) {
			return HWAccel{Encoder: c.encoder, HWAccel: c.hwaccel, Available: true}
		}
	}

	return softwareFallback()
}

// softwareFallback reports the libx264 software path.
func softwareFallback() HWAccel {
	return HWAccel{Encoder: "libx264", Available: false}
}

// trialEncode runs a tiny synthetic encode to verify the encoder actually
// works on this host, not just that ffmpeg was built with it.
func trialEncode(ctx context.Context, ffmpegPath, encoder string) bool {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, ffmpegPath,
		"-hide_banner",
		"-f", "lavfi", "-i", "nullsrc=s=320x240:d=0.1",
		"-c:v", encoder,
		"-t", "0.01",
		"-f", "null", "-")
	return cmd.Run() == nil
}
