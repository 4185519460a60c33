package handlers

import (
	"context"
	"encoding/base64"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/freecut/exportd/internal/ffmpeg"
)

// FFmpegInfoProvider provides FFmpeg binary information.
type FFmpegInfoProvider interface {
	Detect(ctx context.Context) (*ffmpeg.BinaryInfo, error)
}

// MediaProber probes media files with ffprobe.
type MediaProber interface {
	Probe(ctx context.Context, filePath string) (*ffmpeg.ProbeResult, error)
}

// Thumbnailer extracts preview images from media files.
type Thumbnailer interface {
	Thumbnail(ctx context.Context, filePath string, offset time.Duration) ([]byte, error)
}

// SystemHandler handles system and ffmpeg information endpoints.
type SystemHandler struct {
	detector    FFmpegInfoProvider
	prober      MediaProber
	thumbnailer Thumbnailer
}

// NewSystemHandler creates a new system handler.
func NewSystemHandler(detector FFmpegInfoProvider, prober MediaProber, thumbnailer Thumbnailer) *SystemHandler {
	return &SystemHandler{
		detector:    detector,
		prober:      prober,
		thumbnailer: thumbnailer,
	}
}

// FFmpeg info types

// FFmpegInfoInput is the input for the FFmpeg info endpoint.
type FFmpegInfoInput struct{}

// FFmpegInfoOutput is the output for the FFmpeg info endpoint.
type FFmpegInfoOutput struct {
	Body FFmpegInfoResponse
}

// FFmpegInfoResponse describes the FFmpeg installation.
type FFmpegInfoResponse struct {
	Available    bool     `json:"available" doc:"Whether FFmpeg is available"`
	FFmpegPath   string   `json:"ffmpeg_path,omitempty" doc:"Path to FFmpeg binary"`
	FFprobePath  string   `json:"ffprobe_path,omitempty" doc:"Path to FFprobe binary"`
	Version      string   `json:"version,omitempty" doc:"FFmpeg version string"`
	MajorVersion int      `json:"major_version,omitempty" doc:"Major version number"`
	MinorVersion int      `json:"minor_version,omitempty" doc:"Minor version number"`
	Encoders     []string `json:"encoders,omitempty" doc:"Available encoders"`
	HWEncoder    string   `json:"hw_encoder,omitempty" doc:"Selected hardware encoder, if any"`
	HWAccel      string   `json:"hw_accel,omitempty" doc:"Hardware acceleration method in use"`
}

// GetFFmpegInfo returns FFmpeg availability and capabilities.
func (h *SystemHandler) GetFFmpegInfo(ctx context.Context, input *FFmpegInfoInput) (*FFmpegInfoOutput, error) {
	info, err := h.detector.Detect(ctx)
	if err != nil {
		// FFmpeg not available - return minimal response
		return &FFmpegInfoOutput{
			Body: FFmpegInfoResponse{Available: false},
		}, nil
	}

	response := FFmpegInfoResponse{
		Available:    true,
		FFmpegPath:   info.FFmpegPath,
		FFprobePath:  info.FFprobePath,
		Version:      info.Version,
		MajorVersion: info.MajorVersion,
		MinorVersion: info.MinorVersion,
		Encoders:     info.Encoders,
	}
	if info.HWAccel.Available {
		response.HWEncoder = info.HWAccel.Encoder
		response.HWAccel = info.HWAccel.HWAccel
	}

	return &FFmpegInfoOutput{Body: response}, nil
}

// Probe types

// ProbeInput is the input for the media probe endpoint.
type ProbeInput struct {
	Body struct {
		Path string `json:"path" minLength:"1" doc:"Path to the media file on the daemon host"`
	}
}

// ProbeOutput is the output for the media probe endpoint.
type ProbeOutput struct {
	Body ffmpeg.ProbeResult
}

// ProbeMedia runs ffprobe against a media file and returns its properties.
func (h *SystemHandler) ProbeMedia(ctx context.Context, input *ProbeInput) (*ProbeOutput, error) {
	result, err := h.prober.Probe(ctx, input.Body.Path)
	if err != nil {
		return nil, huma.Error400BadRequest("probe failed", err)
	}
	return &ProbeOutput{Body: *result}, nil
}

// Thumbnail types

// ThumbnailInput is the input for the thumbnail endpoint.
type ThumbnailInput struct {
	Body struct {
		Path        string  `json:"path" minLength:"1" doc:"Path to the media file on the daemon host"`
		TimeSeconds float64 `json:"time_seconds,omitempty" minimum:"0" doc:"Offset into the video in seconds"`
	}
}

// ThumbnailOutput carries the generated preview as a data URL.
type ThumbnailOutput struct {
	Body struct {
		Thumbnail string `json:"thumbnail" doc:"JPEG preview as a base64 data URL"`
	}
}

// GenerateThumbnail extracts a single preview frame from a media file.
func (h *SystemHandler) GenerateThumbnail(ctx context.Context, input *ThumbnailInput) (*ThumbnailOutput, error) {
	offset := time.Duration(input.Body.TimeSeconds * float64(time.Second))
	data, err := h.thumbnailer.Thumbnail(ctx, input.Body.Path, offset)
	if err != nil {
		return nil, huma.Error400BadRequest("thumbnail generation failed", err)
	}

	out := &ThumbnailOutput{}
	out.Body.Thumbnail = "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data)
	return out, nil
}

// System info types

// SystemInfoInput is the input for the system info endpoint.
type SystemInfoInput struct{}

// SystemInfoOutput is the output for the system info endpoint.
type SystemInfoOutput struct {
	Body SystemInfoResponse
}

// SystemInfoResponse describes the host the daemon runs on.
type SystemInfoResponse struct {
	OS            string  `json:"os" doc:"Operating system"`
	Platform      string  `json:"platform,omitempty" doc:"Platform name and version"`
	Arch          string  `json:"arch" doc:"CPU architecture"`
	CPUCores      int     `json:"cpu_cores" doc:"Logical CPU count"`
	CPUModel      string  `json:"cpu_model,omitempty" doc:"CPU model name"`
	TotalMemoryMB float64 `json:"total_memory_mb" doc:"Total system memory in MB"`
	UsedMemoryMB  float64 `json:"used_memory_mb" doc:"Used system memory in MB"`
	HostUptimeSec uint64  `json:"host_uptime_sec,omitempty" doc:"Host uptime in seconds"`
}

// GetSystemInfo returns host, CPU and memory information.
func (h *SystemHandler) GetSystemInfo(ctx context.Context, input *SystemInfoInput) (*SystemInfoOutput, error) {
	response := SystemInfoResponse{
		OS:       runtime.GOOS,
		Arch:     runtime.GOARCH,
		CPUCores: runtime.NumCPU(),
	}

	if hostInfo, err := host.Info(); err == nil && hostInfo != nil {
		response.Platform = hostInfo.Platform + " " + hostInfo.PlatformVersion
		response.HostUptimeSec = hostInfo.Uptime
	}

	if cpuInfo, err := cpu.Info(); err == nil && len(cpuInfo) > 0 {
		response.CPUModel = cpuInfo[0].ModelName
	}

	if vmStat, err := mem.VirtualMemory(); err == nil && vmStat != nil {
		response.TotalMemoryMB = float64(vmStat.Total) / 1024 / 1024
		response.UsedMemoryMB = float64(vmStat.Used) / 1024 / 1024
	}

	return &SystemInfoOutput{Body: response}, nil
}

// Register registers the system routes with the API.
func (h *SystemHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getFFmpegInfo",
		Method:      "GET",
		Path:        "/api/v1/ffmpeg",
		Summary:     "Get FFmpeg capabilities",
		Description: "Returns FFmpeg availability, version and the selected hardware encoder",
		Tags:        []string{"System"},
	}, h.GetFFmpegInfo)

	huma.Register(api, huma.Operation{
		OperationID: "probeMedia",
		Method:      "POST",
		Path:        "/api/v1/probe",
		Summary:     "Probe a media file",
		Description: "Runs ffprobe against a file on the daemon host and returns duration, geometry, frame rate and codecs",
		Tags:        []string{"System"},
	}, h.ProbeMedia)

	huma.Register(api, huma.Operation{
		OperationID: "generateThumbnail",
		Method:      "POST",
		Path:        "/api/v1/thumbnail",
		Summary:     "Generate a video thumbnail",
		Description: "Extracts a single scaled JPEG frame at the given offset and returns it as a base64 data URL",
		Tags:        []string{"System"},
	}, h.GenerateThumbnail)

	huma.Register(api, huma.Operation{
		OperationID: "getSystemInfo",
		Method:      "GET",
		Path:        "/api/v1/system",
		Summary:     "Get system information",
		Tags:        []string{"System"},
	}, h.GetSystemInfo)
}
