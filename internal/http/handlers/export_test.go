package handlers

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freecut/exportd/internal/config"
	"github.com/freecut/exportd/internal/export"
	"github.com/freecut/exportd/internal/ffmpeg"
	"github.com/freecut/exportd/internal/observability"
)

// nullPipeline discards frames; the starter seeds the video-only path so
// finalize has an artifact to rename.
type nullPipeline struct {
	closed bool
}

func (p *nullPipeline) Write(frame []byte) error { return nil }

func (p *nullPipeline) CloseInput() error { p.closed = true; return nil }

func (p *nullPipeline) Wait(ctx context.Context) error { return nil }

func (p *nullPipeline) Terminate() {}

func (p *nullPipeline) EncoderFPS() float64 { return 0 }

func (p *nullPipeline) StderrTail() string { return "" }

func newTestHandler(t *testing.T) *ExportHandler {
	t.Helper()

	cfg := config.ExportConfig{
		JobRetention:    time.Hour,
		FinalizeTimeout: 5 * time.Second,
		MuxTimeout:      5 * time.Second,
		FrameWindow:     64,
		MaxBufferBytes:  16 * 1024 * 1024,
		MaxFrameBytes:   1024 * 1024,
		MaxAudioBytes:   4 * 1024,
	}

	starter := export.StarterFunc(func(ctx context.Context, spec ffmpeg.EncodeSpec, videoOnlyPath string) (export.Pipeline, error) {
		if err := os.WriteFile(videoOnlyPath, []byte("video-data"), 0o644); err != nil {
			return nil, err
		}
		return &nullPipeline{}, nil
	})
	muxer := export.MuxerFunc(func(ctx context.Context, videoOnlyPath, audioPath, outputPath, container string, audioBitrate int64) error {
		return os.WriteFile(outputPath, []byte("muxed"), 0o644)
	})

	manager := export.NewManager(cfg, t.TempDir(), starter, muxer, observability.NewLogger(config.LoggingConfig{Level: "error"}))
	t.Cleanup(manager.Close)

	return NewExportHandler(manager, cfg.MaxFrameBytes.Int64(), cfg.MaxAudioBytes.Int64())
}

func createTestExport(t *testing.T, h *ExportHandler) export.Snapshot {
	t.Helper()

	out, err := h.CreateExport(context.Background(), &CreateExportInput{
		Body: CreateExportRequest{
			Width:       4,
			Height:      4,
			FPS:         30,
			TotalFrames: 2,
			Container:   "mp4",
		},
	})
	require.NoError(t, err)
	return out.Body
}

func rgbaFrame() []byte {
	return bytes.Repeat([]byte{0xff}, 4*4*4)
}

func TestCreateExportValidation(t *testing.T) {
	h := newTestHandler(t)

	_, err := h.CreateExport(context.Background(), &CreateExportInput{
		Body: CreateExportRequest{Width: 4, Height: 4, FPS: 30, TotalFrames: 0},
	})
	require.Error(t, err)

	var statusErr huma.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.GetStatus())
}

func TestExportLifecycle(t *testing.T) {
	h := newTestHandler(t)
	snap := createTestExport(t, h)
	require.Equal(t, export.StatusEncoding, snap.Status)

	// Frames out of order; both must be accepted.
	_, err := h.SubmitFrame(context.Background(), &SubmitFrameInput{ID: snap.ID, Index: 1, RawBody: rgbaFrame()})
	require.NoError(t, err)
	out, err := h.SubmitFrame(context.Background(), &SubmitFrameInput{ID: snap.ID, Index: 0, RawBody: rgbaFrame()})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Body.FramesReceived)
	assert.InDelta(t, 1.0, out.Body.Progress, 1e-9)

	final, err := h.FinalizeExport(context.Background(), &ExportIDInput{ID: snap.ID})
	require.NoError(t, err)
	assert.Equal(t, export.StatusDone, final.Body.Status)

	got, err := h.GetExport(context.Background(), &ExportIDInput{ID: snap.ID})
	require.NoError(t, err)
	assert.Equal(t, export.StatusDone, got.Body.Status)
}

func TestSubmitFrameMapsNotFound(t *testing.T) {
	h := newTestHandler(t)

	_, err := h.SubmitFrame(context.Background(), &SubmitFrameInput{ID: "01ZZZZZZZZZZZZZZZZZZZZZZZZ", Index: 0, RawBody: rgbaFrame()})
	require.Error(t, err)

	var statusErr huma.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.GetStatus())
}

func TestSubmitFrameMapsPayloadMismatch(t *testing.T) {
	h := newTestHandler(t)
	snap := createTestExport(t, h)

	_, err := h.SubmitFrame(context.Background(), &SubmitFrameInput{ID: snap.ID, Index: 0, RawBody: []byte("short")})
	require.Error(t, err)

	var statusErr huma.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.GetStatus())
}

func TestFinalizeTwiceMapsConflict(t *testing.T) {
	h := newTestHandler(t)
	snap := createTestExport(t, h)

	_, err := h.SubmitFrame(context.Background(), &SubmitFrameInput{ID: snap.ID, Index: 0, RawBody: rgbaFrame()})
	require.NoError(t, err)
	_, err = h.SubmitFrame(context.Background(), &SubmitFrameInput{ID: snap.ID, Index: 1, RawBody: rgbaFrame()})
	require.NoError(t, err)
	_, err = h.FinalizeExport(context.Background(), &ExportIDInput{ID: snap.ID})
	require.NoError(t, err)

	_, err = h.FinalizeExport(context.Background(), &ExportIDInput{ID: snap.ID})
	require.Error(t, err)

	var statusErr huma.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusConflict, statusErr.GetStatus())
}

func TestSubmitAudio(t *testing.T) {
	h := newTestHandler(t)
	snap := createTestExport(t, h)

	out, err := h.SubmitAudio(context.Background(), &SubmitAudioInput{ID: snap.ID, RawBody: []byte("wav-data")})
	require.NoError(t, err)
	assert.Equal(t, int64(8), out.Body.Size)
}

func TestSubmitAudioBodyCap(t *testing.T) {
	h := newTestHandler(t)
	snap := createTestExport(t, h)

	router := chi.NewRouter()
	api := humachi.New(router, huma.DefaultConfig("Test API", "1.0.0"))
	h.Register(api)

	// One byte over the configured audio cap.
	body := bytes.Repeat([]byte{0x01}, 4*1024+1)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/exports/"+snap.ID+"/audio", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/octet-stream")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	// A within-cap upload on the same route still succeeds.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/exports/"+snap.ID+"/audio", bytes.NewReader([]byte("wav-data")))
	req.Header.Set("Content-Type", "application/octet-stream")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCancelExportIdempotent(t *testing.T) {
	h := newTestHandler(t)
	snap := createTestExport(t, h)

	_, err := h.CancelExport(context.Background(), &ExportIDInput{ID: snap.ID})
	require.NoError(t, err)
	_, err = h.CancelExport(context.Background(), &ExportIDInput{ID: snap.ID})
	require.NoError(t, err)

	got, err := h.GetExport(context.Background(), &ExportIDInput{ID: snap.ID})
	require.NoError(t, err)
	assert.Equal(t, export.StatusCancelled, got.Body.Status)
}

func TestDownloadExport(t *testing.T) {
	h := newTestHandler(t)
	snap := createTestExport(t, h)

	router := chi.NewRouter()
	h.RegisterChiRoutes(router)

	// Not finished yet.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/exports/"+snap.ID+"/download", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	_, err := h.SubmitFrame(context.Background(), &SubmitFrameInput{ID: snap.ID, Index: 0, RawBody: rgbaFrame()})
	require.NoError(t, err)
	_, err = h.SubmitFrame(context.Background(), &SubmitFrameInput{ID: snap.ID, Index: 1, RawBody: rgbaFrame()})
	require.NoError(t, err)
	_, err = h.FinalizeExport(context.Background(), &ExportIDInput{ID: snap.ID})
	require.NoError(t, err)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/exports/"+snap.ID+"/download", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, "video-data", string(body))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/exports/unknown/download", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
