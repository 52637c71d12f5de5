// Package upload validates incoming video files and manages their
// temporary storage.
package upload

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/keagan/reelscope/pkg/util"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrFileTooLarge      = errors.New("file too large")
	ErrTooLong           = errors.New("video too long")
	ErrInvalidPlatform   = errors.New("invalid platform")
)

// ValidationError marks a rejection caused by the input itself.
type ValidationError struct {
	Err    error
	Detail string
}

func (e *ValidationError) Error() string {
	return e.Detail
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(err error, format string, args ...any) error {
	return &ValidationError{Err: err, Detail: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Limits bounds what the service accepts.
type Limits struct {
	AllowedExtensions  []string
	MaxFileSizeMB      int64
	MaxDurationSeconds float64
}

// DefaultLimits accepts mp4, mov and avi files up to 200 MB and two
// minutes.
func DefaultLimits() Limits {
	return Limits{
		AllowedExtensions:  []string{".mp4", ".mov", ".avi"},
		MaxFileSizeMB:      200,
		MaxDurationSeconds: 120,
	}
}

// CheckExtension accepts filename when its extension is allowed,
// ignoring case.
func (l Limits) CheckExtension(filename string) error {
	ext := util.GetExtension(filename)
	allowed := make([]string, len(l.AllowedExtensions))
	for i, a := range l.AllowedExtensions {
		allowed[i] = strings.ToLower(a)
	}
	if ext == "" || !slices.Contains(allowed, ext) {
		names := make([]string, len(allowed))
		for i, a := range allowed {
			names[i] = strings.TrimPrefix(a, ".")
		}
		return invalid(ErrUnsupportedFormat, "Unsupported file format. Allowed: %s.", strings.Join(names, ", "))
	}
	return nil
}

// CheckSize rejects files above the size cap.
func (l Limits) CheckSize(path string) error {
	size, err := util.FileSize(path)
	if err != nil {
		return fmt.Errorf("stat upload: %w", err)
	}
	return l.CheckBytes(size)
}

// CheckBytes rejects sizes above the cap.
func (l Limits) CheckBytes(size int64) error {
	if float64(size)/(1024*1024) > float64(l.MaxFileSizeMB) {
		return invalid(ErrFileTooLarge, "File size exceeds %dMB limit.", l.MaxFileSizeMB)
	}
	return nil
}

// CheckDuration rejects videos longer than the cap. Duration is derived
// from the frame count, 0 when fps is unknown.
func (l Limits) CheckDuration(fps float64, totalFrames int) (float64, error) {
	var duration float64
	if fps > 0 {
		duration = float64(totalFrames) / fps
	}
	if duration > l.MaxDurationSeconds {
		return duration, invalid(ErrTooLong, "Video exceeds maximum allowed duration of %s.", humanSeconds(l.MaxDurationSeconds))
	}
	return duration, nil
}

func humanSeconds(s float64) string {
	if s >= 60 && int(s)%60 == 0 {
		m := int(s) / 60
		if m == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", m)
	}
	return fmt.Sprintf("%g seconds", s)
}

// CheckPlatform rejects names outside the known set.
func CheckPlatform(name string, known []string) error {
	if !slices.Contains(known, name) {
		return invalid(ErrInvalidPlatform, "Invalid platform. Choose %s.", joinOr(known))
	}
	return nil
}

func joinOr(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + ", or " + items[len(items)-1]
}
