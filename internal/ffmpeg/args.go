package ffmpeg

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EncodeSpec describes a raw-frame encode session.
type EncodeSpec struct {
	Width        int
	Height       int
	FPS          float64
	Codec        string // h264, hevc, vp9 (empty = h264)
	Quality      string // low, medium, high, very_high
	Container    string // mp4, webm, mov, mkv
	VideoBitrate int64  // bits/s, 0 = quality-based rate control
	AudioBitrate int64  // bits/s, 0 = container default
}

// crfMap maps quality names to rate-control values per encoder family.
var crfMap = map[string]map[string]string{
	"low":       {"libx264": "28", "libx265": "32", "libvpx": "35", "hw": "30"},
	"medium":    {"libx264": "23", "libx265": "28", "libvpx": "30", "hw": "25"},
	"high":      {"libx264": "18", "libx265": "24", "libvpx": "23", "hw": "20"},
	"very_high": {"libx264": "15", "libx265": "20", "libvpx": "18", "hw": "15"},
}

// containerExts maps container names to file extensions.
var containerExts = map[string]string{
	"mp4":  ".mp4",
	"webm": ".webm",
	"mov":  ".mov",
	"mkv":  ".mkv",
}

// ContainerExt returns the file extension for a container, defaulting to mp4.
func ContainerExt(container string) string {
	if ext, ok := containerExts[container]; ok {
		return ext
	}
	return ".mp4"
}

// ContentType returns the MIME type for a container, defaulting to mp4.
func ContentType(container string) string {
	switch container {
	case "webm":
		return "video/webm"
	case "mov":
		return "video/quicktime"
	case "mkv":
		return "video/x-matroska"
	default:
		return "video/mp4"
	}
}

// resolveEncoder maps a codec request to a software encoder, or the detected
// hardware encoder when the request is h264 and one is available.
func resolveEncoder(codec string, hw HWAccel) string {
	switch codec {
	case "", "h264", "avc":
		if hw.Available && hw.Encoder != "" {
			return hw.Encoder
		}
		return "libx264"
	case "hevc", "h265":
		return "libx265"
	case "vp9":
		return "libvpx-vp9"
	default:
		return "libx264"
	}
}

// rateArgs returns the encoder-specific rate-control arguments.
func rateArgs(encoder, quality string, videoBitrate int64) []string {
	if videoBitrate > 0 {
		return []string{"-b:v", strconv.FormatInt(videoBitrate, 10), "-pix_fmt", "yuv420p"}
	}

	crf, ok := crfMap[quality]
	if !ok {
		crf = crfMap["medium"]
	}

	switch {
	case encoder == "libx264":
		return []string{"-crf", crf["libx264"], "-preset", "fast", "-pix_fmt", "yuv420p"}
	case encoder == "libx265":
		return []string{"-crf", crf["libx265"], "-preset", "fast", "-pix_fmt", "yuv420p"}
	case encoder == "libvpx-vp9":
		return []string{"-crf", crf["libvpx"], "-b:v", "0", "-pix_fmt", "yuv420p"}
	case strings.Contains(encoder, "nvenc"):
		return []string{"-cq", crf["hw"], "-preset", "p4", "-pix_fmt", "yuv420p"}
	case strings.Contains(encoder, "videotoolbox"):
		return []string{"-q:v", crf["hw"], "-pix_fmt", "yuv420p"}
	case strings.Contains(encoder, "amf"):
		return []string{"-quality", "balanced", "-pix_fmt", "yuv420p"}
	case strings.Contains(encoder, "qsv"):
		return []string{"-global_quality", crf["hw"], "-preset", "faster", "-pix_fmt", "yuv420p"}
	default:
		return []string{"-pix_fmt", "yuv420p"}
	}
}

// audioCodecArgs returns the audio codec arguments for a container.
func audioCodecArgs(container string, bitrate int64) []string {
	if container == "webm" {
		if bitrate <= 0 {
			bitrate = 128000
		}
		return []string{"-c:a", "libopus", "-b:a", strconv.FormatInt(bitrate, 10)}
	}
	if bitrate <= 0 {
		bitrate = 192000
	}
	return []string{"-c:a", "aac", "-b:a", strconv.FormatInt(bitrate, 10)}
}

// CommandBuilder builds FFmpeg argument lists with a fluent API.
type CommandBuilder struct {
	binary     string
	globalArgs []string
	inputArgs  []string
	inputs     []string
	outputArgs []string
	output     string
	logLevel   string
	overwrite  bool
}

// NewCommandBuilder creates a new FFmpeg command builder.
func NewCommandBuilder(ffmpegPath string) *CommandBuilder {
	return &CommandBuilder{
		binary:   ffmpegPath,
		logLevel: "error",
	}
}

// LogLevel sets the FFmpeg log level.
func (b *CommandBuilder) LogLevel(level string) *CommandBuilder {
	b.logLevel = level
	return b
}

// HideBanner hides the FFmpeg banner.
func (b *CommandBuilder) HideBanner() *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-hide_banner")
	return b
}

// Overwrite enables output file overwriting.
func (b *CommandBuilder) Overwrite() *CommandBuilder {
	b.overwrite = true
	return b
}

// RawVideoInput configures stdin as a raw RGBA frame source.
func (b *CommandBuilder) RawVideoInput(width, height int, fps float64) *CommandBuilder {
	b.inputArgs = append(b.inputArgs,
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", width, height),
		"-r", strconv.FormatFloat(fps, 'f', -1, 64),
	)
	b.inputs = append(b.inputs, "pipe:0")
	return b
}

// Seek positions the next input's read at the given offset.
func (b *CommandBuilder) Seek(offset time.Duration) *CommandBuilder {
	b.inputArgs = append(b.inputArgs, "-ss", strconv.FormatFloat(offset.Seconds(), 'f', -1, 64))
	return b
}

// Input adds a file input.
func (b *CommandBuilder) Input(input string) *CommandBuilder {
	b.inputs = append(b.inputs, input)
	return b
}

// VideoCodec sets the video codec.
func (b *CommandBuilder) VideoCodec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:v", codec)
	return b
}

// CopyVideo passes the video stream through unchanged.
func (b *CommandBuilder) CopyVideo() *CommandBuilder {
	return b.VideoCodec("copy")
}

// NoAudio disables audio in the output.
func (b *CommandBuilder) NoAudio() *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-an")
	return b
}

// Shortest ends the output with the shortest input stream.
func (b *CommandBuilder) Shortest() *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-shortest")
	return b
}

// FastStart moves the moov atom to the front for streamable mp4.
func (b *CommandBuilder) FastStart() *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-movflags", "+faststart")
	return b
}

// ProgressPipe emits machine-readable progress on stdout.
func (b *CommandBuilder) ProgressPipe() *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-progress", "pipe:1")
	return b
}

// OutputArgs adds arbitrary output arguments.
func (b *CommandBuilder) OutputArgs(args ...string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, args...)
	return b
}

// Output sets the output destination.
func (b *CommandBuilder) Output(output string) *CommandBuilder {
	b.output = output
	return b
}

// Build assembles the final command.
func (b *CommandBuilder) Build() *Command {
	args := []string{"-loglevel", b.logLevel}
	args = append(args, b.globalArgs...)
	if b.overwrite {
		args = append(args, "-y")
	}
	args = append(args, b.inputArgs...)
	for _, in := range b.inputs {
		args = append(args, "-i", in)
	}
	args = append(args, b.outputArgs...)
	args = append(args, b.output)

	return &Command{Binary: b.binary, Args: args}
}

// BuildEncodeCommand builds the long-lived encode command that consumes raw
// RGBA frames on stdin and writes a video-only artifact. Progress is emitted
// on stdout.
func BuildEncodeCommand(ffmpegPath string, spec EncodeSpec, hw HWAccel, videoOnlyPath string) *Command {
	encoder := resolveEncoder(spec.Codec, hw)

	b := NewCommandBuilder(ffmpegPath).
		HideBanner().
		Overwrite().
		RawVideoInput(spec.Width, spec.Height, spec.FPS).
		VideoCodec(encoder).
		OutputArgs(rateArgs(encoder, spec.Quality, spec.VideoBitrate)...).
		NoAudio().
		ProgressPipe().
		Output(videoOnlyPath)

	return b.Build()
}

// BuildMuxCommand builds the finalize pass that copies the encoded video and
// adds the captured audio track.
func BuildMuxCommand(ffmpegPath string, videoOnlyPath, audioPath, outputPath, container string, audioBitrate int64) *Command {
	b := NewCommandBuilder(ffmpegPath).
		HideBanner().
		Overwrite().
		Input(videoOnlyPath).
		Input(audioPath).
		CopyVideo().
		OutputArgs(audioCodecArgs(container, audioBitrate)...).
		Shortest()

	if container == "mp4" {
		b.FastStart()
	}

	return b.Output(outputPath).Build()
}

// BuildThumbnailCommand builds the one-shot pass that extracts a single
// scaled JPEG frame at the given offset.
func BuildThumbnailCommand(ffmpegPath, inputPath, outputPath string, offset time.Duration) *Command {
	return NewCommandBuilder(ffmpegPath).
		HideBanner().
		Overwrite().
		Seek(offset).
		Input(inputPath).
		OutputArgs("-vframes", "1", "-vf", "scale=320:-1", "-q:v", "5").
		Output(outputPath).
		Build()
}

// EncoderName returns the encoder a spec will resolve to.
func (s EncodeSpec) EncoderName(hw HWAccel) string {
	return resolveEncoder(s.Codec, hw)
}
