package audio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Spool manages the temporary audio files handed to the transcription
// backend. Files are written under a single directory and removed by the
// caller once transcription is done.
type Spool struct {
	dir        string
	sampleRate int
}

func NewSpool(dir string, sampleRate int) *Spool {
	if dir == "" {
		dir = "uploads"
	}
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &Spool{dir: dir, sampleRate: sampleRate}
}

func (s *Spool) Dir() string {
	return s.dir
}

// StreamPath is the temp file name for a flush of meetingID covering chunks
// up to upTo.
func (s *Spool) StreamPath(meetingID string, upTo int) string {
	return filepath.Join(s.dir, fmt.Sprintf("stream_%s_%d.wav", meetingID, upTo))
}

// WriteStream wraps raw PCM chunks as a WAV file and returns its path.
func (s *Spool) WriteStream(meetingID string, upTo int, chunks [][]byte) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create spool directory: %w", err)
	}

	path := s.StreamPath(meetingID, upTo)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("open spool file: %w", err)
	}

	if err := WriteWAV(f, chunks, s.sampleRate); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close spool file: %w", err)
	}
	return path, nil
}

// SaveUpload copies an uploaded audio unit to the spool. The original file
// extension is kept so the backend can detect the container format.
func (s *Spool) SaveUpload(prefix, originalName string, r io.Reader) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create spool directory: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(originalName))
	if ext == "" {
		ext = ".webm"
	}
	f, err := os.CreateTemp(s.dir, prefix+"_*"+ext)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("write upload file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("close upload file: %w", err)
	}
	return f.Name(), nil
}

// Remove deletes a spooled file. Missing files are not an error.
func (s *Spool) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove spool file: %w", err)
	}
	return nil
}
