package utils

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	MaxMediaSize = 300 << 20 // matches the original upload cap
	MediaPath    = "uploads/media"
	StoryPath    = "uploads/stories"
	ProfilePath  = "uploads/images"
)

const (
	MediaImage = "image"
	MediaVideo = "video"
	MediaAudio = "audio"
)

var extKinds = map[string]string{
	".jpg":  MediaImage,
	".jpeg": MediaImage,
	".png":  MediaImage,
	".gif":  MediaImage,
	".webp": MediaImage,
	".bmp":  MediaImage,
	".svg":  MediaImage,
	".mp4":  MediaVideo,
	".mov":  MediaVideo,
	".avi":  MediaVideo,
	".webm": MediaVideo,
	".mp3":  MediaAudio,
	".wav":  MediaAudio,
	".ogg":  MediaAudio,
}

// DetectMediaKind classifies an upload by file extension into
// image/video/audio. Unknown extensions are rejected.
func DetectMediaKind(filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	kind, ok := extKinds[ext]
	if !ok {
		return "", fmt.Errorf("unsupported media type: %s", ext)
	}
	return kind, nil
}

// SaveMedia stores an uploaded file under dir with a uuid filename and
// returns its URL path plus the detected media kind.
func SaveMedia(file multipart.File, header *multipart.FileHeader, dir string) (string, string, error) {
	if header.Size > MaxMediaSize {
		return "", "", fmt.Errorf("file size exceeds maximum limit of %d MB", MaxMediaSize/(1<<20))
	}

	kind, err := DetectMediaKind(header.Filename)
	if err != nil {
		return "", "", err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", "", fmt.Errorf("failed to create upload directory: %v", err)
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	filename := fmt.Sprintf("%s-%s%s",
		time.Now().Format("20060102"),
		uuid.New().String(),
		ext,
	)
	filePath := filepath.Join(dir, filename)

	dst, err := os.Create(filePath)
	if err != nil {
		return "", "", fmt.Errorf("failed to create file: %v", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		return "", "", fmt.Errorf("failed to save file: %v", err)
	}

	return "/" + filepath.ToSlash(filePath), kind, nil
}

func DeleteMedia(mediaURL string) error {
	rel := strings.TrimPrefix(mediaURL, "/")
	if rel == "" || !strings.HasPrefix(rel, "uploads/") {
		return nil
	}

	if _, err := os.Stat(rel); os.IsNotExist(err) {
		return nil
	}

	return os.Remove(rel)
}

// SweepOrphanedMedia removes files older than maxAge whose URL no longer
// appears in any row, as reported by inUse.
func SweepOrphanedMedia(dir string, maxAge time.Duration, inUse func(url string) bool) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		url := "/" + filepath.ToSlash(filepath.Join(dir, entry.Name()))
		if inUse(url) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}
