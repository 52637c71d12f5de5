package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keagan/reelscope/internal/analysis"
	"github.com/keagan/reelscope/internal/frames"
	"github.com/keagan/reelscope/internal/pipeline"
	"github.com/keagan/reelscope/internal/upload"
)

// multipartMemory is how much of a form is buffered before spilling to disk.
const multipartMemory = 32 << 20

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSMiddleware())

	r.Get("/health", healthHandler(cfg))
	r.Post("/analyze", analyzeHandler(cfg))

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{Status: "ok", Version: cfg.Version}
		if !cfg.StartTime.IsZero() {
			resp.UptimeS = int64(time.Since(cfg.StartTime).Seconds())
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func platformNames() []string {
	ps := analysis.Platforms()
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = string(p)
	}
	return names
}

func analyzeHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := cfg.Logger.With().Str("request_id", requestID(r.Context())).Logger()

		if cfg.MaxUploadBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadBytes)
		}
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				writeAnalyzeError(w, &upload.ValidationError{
					Err:    upload.ErrFileTooLarge,
					Detail: fmt.Sprintf("File size exceeds %dMB limit.", cfg.Limits.MaxFileSizeMB),
				})
				return
			}
			WriteError(w, http.StatusBadRequest, "invalid multipart form", "INVALID_REQUEST")
			return
		}
		defer r.MultipartForm.RemoveAll()

		name := r.FormValue("platform")
		if err := upload.CheckPlatform(name, platformNames()); err != nil {
			writeAnalyzeError(w, err)
			return
		}
		platform, _ := analysis.ParsePlatform(name)

		file, header, err := r.FormFile("file")
		if err != nil {
			WriteError(w, http.StatusBadRequest, "file is required", "INVALID_REQUEST")
			return
		}
		defer file.Close()

		if err := cfg.Limits.CheckExtension(header.Filename); err != nil {
			writeAnalyzeError(w, err)
			return
		}

		path, size, err := upload.Store(cfg.TempDir, header.Filename, file, cfg.Limits.MaxFileSizeMB*1024*1024)
		if err != nil {
			writeAnalyzeError(w, err)
			return
		}
		defer upload.Cleanup(path)

		ctx := r.Context()
		if cfg.RequestTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.RequestTimeout)
			defer cancel()
		}

		info, err := cfg.Analyzer.Probe(ctx, path)
		if err != nil {
			logger.Warn().Err(err).Str("file", header.Filename).Msg("probe failed")
			writeAnalyzeError(w, err)
			return
		}
		duration, err := cfg.Limits.CheckDuration(info.FPS, info.TotalFrames)
		if err != nil {
			writeAnalyzeError(w, err)
			return
		}

		logger.Info().
			Str("file", header.Filename).
			Int64("bytes", size).
			Float64("duration", duration).
			Str("platform", name).
			Msg("analyzing upload")

		report, err := cfg.Analyzer.AnalyzeInfo(ctx, info, pipeline.AnalyzeOptions{Platform: platform})
		if err != nil {
			logger.Error().Err(err).Str("file", header.Filename).Msg("analysis failed")
			writeAnalyzeError(w, err)
			return
		}

		WriteJSON(w, http.StatusOK, ReportToResponse(report))
	}
}

// writeAnalyzeError maps input problems to 400 and everything else to 500.
func writeAnalyzeError(w http.ResponseWriter, err error) {
	switch {
	case upload.IsValidation(err):
		var ve *upload.ValidationError
		errors.As(err, &ve)
		status := http.StatusBadRequest
		if errors.Is(err, upload.ErrFileTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		WriteError(w, status, ve.Detail, validationCode(ve.Err))
	case errors.Is(err, frames.ErrSourceUnavailable):
		WriteError(w, http.StatusBadRequest, "Unable to read video file.", "UNREADABLE_VIDEO")
	case errors.Is(err, context.DeadlineExceeded):
		WriteError(w, http.StatusGatewayTimeout, "analysis timed out", "TIMEOUT")
	default:
		WriteError(w, http.StatusInternalServerError, "analysis failed", "INTERNAL_ERROR")
	}
}

func validationCode(err error) string {
	switch {
	case errors.Is(err, upload.ErrUnsupportedFormat):
		return "UNSUPPORTED_FORMAT"
	case errors.Is(err, upload.ErrFileTooLarge):
		return "FILE_TOO_LARGE"
	case errors.Is(err, upload.ErrTooLong):
		return "VIDEO_TOO_LONG"
	case errors.Is(err, upload.ErrInvalidPlatform):
		return "INVALID_PLATFORM"
	}
	return "INVALID_REQUEST"
}
