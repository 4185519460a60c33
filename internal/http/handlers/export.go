// Package handlers provides HTTP API handlers for exportd.
package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"github.com/freecut/exportd/internal/export"
)

// ExportHandler handles export job endpoints.
type ExportHandler struct {
	manager       *export.Manager
	maxFrameBytes int64
	maxAudioBytes int64
}

// NewExportHandler creates a new export handler. The byte limits cap the
// frame and audio upload bodies.
func NewExportHandler(manager *export.Manager, maxFrameBytes, maxAudioBytes int64) *ExportHandler {
	return &ExportHandler{
		manager:       manager,
		maxFrameBytes: maxFrameBytes,
		maxAudioBytes: maxAudioBytes,
	}
}

// mapExportError translates export package errors to Huma status errors.
func mapExportError(err error) error {
	var encErr *export.EncoderError
	switch {
	case errors.Is(err, export.ErrJobNotFound):
		return huma.Error404NotFound("export job not found")
	case errors.Is(err, export.ErrInvalidState):
		return huma.Error409Conflict("export job is not in a valid state for this operation", err)
	case errors.Is(err, export.ErrPayloadMismatch),
		errors.Is(err, export.ErrWindowExceeded):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, export.ErrFinalizeTimeout):
		return huma.Error500InternalServerError("encoder did not finish in time", err)
	case errors.As(err, &encErr):
		return huma.Error500InternalServerError("encoder failed", err)
	case errors.Is(err, export.ErrPipelineUnavailable):
		return huma.Error500InternalServerError("encoder pipeline unavailable", err)
	default:
		return huma.Error400BadRequest(err.Error())
	}
}

// Create types

// CreateExportRequest describes a new export session.
type CreateExportRequest struct {
	Width        int     `json:"width" minimum:"1" doc:"Frame width in pixels"`
	Height       int     `json:"height" minimum:"1" doc:"Frame height in pixels"`
	FPS          float64 `json:"fps" exclusiveMinimum:"0" doc:"Output frame rate"`
	TotalFrames  int     `json:"total_frames" minimum:"1" doc:"Total number of frames that will be submitted"`
	Codec        string  `json:"codec,omitempty" doc:"Video codec (h264, hevc, vp9); default h264"`
	Quality      string  `json:"quality,omitempty" doc:"Quality preset (low, medium, high, very_high); default high"`
	Container    string  `json:"container,omitempty" doc:"Output container (mp4, webm, mov); default mp4"`
	VideoBitrate int64   `json:"video_bitrate,omitempty" doc:"Explicit video bitrate in bits/s; overrides quality CRF"`
	AudioBitrate int64   `json:"audio_bitrate,omitempty" doc:"Audio bitrate in bits/s for the mux pass"`
}

// CreateExportInput is the input for creating an export job.
type CreateExportInput struct {
	Body CreateExportRequest
}

// ExportOutput wraps a job snapshot response.
type ExportOutput struct {
	Body export.Snapshot
}

// CreateExport starts a new export job and its encoder pipeline.
func (h *ExportHandler) CreateExport(ctx context.Context, input *CreateExportInput) (*ExportOutput, error) {
	snap, err := h.manager.Create(ctx, export.CreateRequest{
		Width:        input.Body.Width,
		Height:       input.Body.Height,
		FPS:          input.Body.FPS,
		TotalFrames:  input.Body.TotalFrames,
		Codec:        input.Body.Codec,
		Quality:      input.Body.Quality,
		Container:    input.Body.Container,
		VideoBitrate: input.Body.VideoBitrate,
		AudioBitrate: input.Body.AudioBitrate,
	})
	if err != nil {
		return nil, huma.Error400BadRequest("invalid export request", err)
	}
	return &ExportOutput{Body: snap}, nil
}

// Frame types

// SubmitFrameInput is the input for submitting a raw RGBA frame.
type SubmitFrameInput struct {
	ID      string `path:"id" doc:"Export job ID"`
	Index   int    `path:"index" minimum:"0" doc:"Zero-based frame index"`
	RawBody []byte `contentType:"application/octet-stream" doc:"Raw RGBA pixel data, width*height*4 bytes"`
}

// SubmitFrame accepts one raw frame. Frames may arrive in any order; the
// job's reorder buffer releases them to the encoder in index order.
func (h *ExportHandler) SubmitFrame(ctx context.Context, input *SubmitFrameInput) (*ExportOutput, error) {
	snap, err := h.manager.SubmitFrame(input.ID, input.Index, input.RawBody)
	if err != nil {
		return nil, mapExportError(err)
	}
	return &ExportOutput{Body: snap}, nil
}

// Audio types

// SubmitAudioInput is the input for attaching an audio track.
type SubmitAudioInput struct {
	ID      string `path:"id" doc:"Export job ID"`
	RawBody []byte `contentType:"application/octet-stream" doc:"Audio track data (WAV)"`
}

// SubmitAudioOutput reports the stored audio size.
type SubmitAudioOutput struct {
	Body struct {
		Size int64 `json:"size" doc:"Stored audio track size in bytes"`
	}
}

// SubmitAudio stores an audio track to be muxed during finalize. Submitting
// again replaces the previous track.
func (h *ExportHandler) SubmitAudio(ctx context.Context, input *SubmitAudioInput) (*SubmitAudioOutput, error) {
	size, err := h.manager.SubmitAudio(input.ID, bytes.NewReader(input.RawBody))
	if err != nil {
		return nil, mapExportError(err)
	}
	out := &SubmitAudioOutput{}
	out.Body.Size = size
	return out, nil
}

// Finalize / status / cancel types

// ExportIDInput identifies an export job by path parameter.
type ExportIDInput struct {
	ID string `path:"id" doc:"Export job ID"`
}

// FinalizeExport closes the encoder input, waits for the encoder to exit and
// assembles the final artifact (muxing audio when present).
func (h *ExportHandler) FinalizeExport(ctx context.Context, input *ExportIDInput) (*ExportOutput, error) {
	snap, err := h.manager.Finalize(ctx, input.ID)
	if err != nil {
		return nil, mapExportError(err)
	}
	return &ExportOutput{Body: snap}, nil
}

// GetExport returns the current job snapshot without blocking on the encoder.
func (h *ExportHandler) GetExport(ctx context.Context, input *ExportIDInput) (*ExportOutput, error) {
	snap, err := h.manager.Get(input.ID)
	if err != nil {
		return nil, mapExportError(err)
	}
	return &ExportOutput{Body: snap}, nil
}

// CancelExportOutput is the output for cancelling a job.
type CancelExportOutput struct {
	Body struct {
		Message string `json:"message"`
	}
}

// CancelExport cancels a job. Cancelling a terminal job is a no-op success.
func (h *ExportHandler) CancelExport(ctx context.Context, input *ExportIDInput) (*CancelExportOutput, error) {
	if err := h.manager.Cancel(input.ID); err != nil {
		return nil, mapExportError(err)
	}
	out := &CancelExportOutput{}
	out.Body.Message = "export cancelled"
	return out, nil
}

// Register registers the export routes with the Huma API.
func (h *ExportHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "createExport",
		Method:      "POST",
		Path:        "/api/v1/exports",
		Summary:     "Create an export job",
		Description: "Starts an encoder pipeline and returns the new job. Frames are submitted individually afterwards.",
		Tags:        []string{"Export"},
	}, h.CreateExport)

	huma.Register(api, huma.Operation{
		OperationID:  "submitFrame",
		Method:       "POST",
		Path:         "/api/v1/exports/{id}/frames/{index}",
		Summary:      "Submit a raw frame",
		Description:  "Accepts one raw RGBA frame as the request body. Frames may arrive in any order.",
		Tags:         []string{"Export"},
		MaxBodyBytes: h.maxFrameBytes,
	}, h.SubmitFrame)

	huma.Register(api, huma.Operation{
		OperationID:  "submitAudio",
		Method:       "POST",
		Path:         "/api/v1/exports/{id}/audio",
		Summary:      "Attach an audio track",
		Description:  "Stores an audio track to be muxed into the final artifact. Resubmission replaces the previous track.",
		Tags:         []string{"Export"},
		MaxBodyBytes: h.maxAudioBytes,
	}, h.SubmitAudio)

	huma.Register(api, huma.Operation{
		OperationID: "finalizeExport",
		Method:      "POST",
		Path:        "/api/v1/exports/{id}/finalize",
		Summary:     "Finalize an export job",
		Description: "Flushes buffered frames, closes the encoder and assembles the final artifact.",
		Tags:        []string{"Export"},
	}, h.FinalizeExport)

	huma.Register(api, huma.Operation{
		OperationID: "getExport",
		Method:      "GET",
		Path:        "/api/v1/exports/{id}",
		Summary:     "Get export job status",
		Tags:        []string{"Export"},
	}, h.GetExport)

	huma.Register(api, huma.Operation{
		OperationID: "cancelExport",
		Method:      "DELETE",
		Path:        "/api/v1/exports/{id}",
		Summary:     "Cancel an export job",
		Tags:        []string{"Export"},
	}, h.CancelExport)
}

// RegisterChiRoutes registers the artifact download route. This uses Chi
// directly because Huma doesn't handle file streaming well.
func (h *ExportHandler) RegisterChiRoutes(r chi.Router) {
	r.Get("/api/v1/exports/{id}/download", h.DownloadExport)
}

// DownloadExport streams the finished artifact.
func (h *ExportHandler) DownloadExport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	path, contentType, err := h.manager.OutputFile(id)
	if err != nil {
		if errors.Is(err, export.ErrJobNotFound) {
			http.Error(w, "export job not found", http.StatusNotFound)
			return
		}
		http.Error(w, "export is not finished", http.StatusConflict)
		return
	}

	file, err := os.Open(path)
	if err != nil {
		http.Error(w, "export artifact not found", http.StatusNotFound)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		http.Error(w, "failed to stat export artifact", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filepath.Base(path)))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", info.Size()))

	if _, err := io.Copy(w, file); err != nil {
		// Client may have disconnected; nothing useful to return.
		return
	}
}
