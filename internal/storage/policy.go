package storage

import (
	"errors"
	"fmt"
	"mime"
	"strings"
)

var (
	ErrEmptyFile     = errors.New("file is empty")
	ErrFileTooLarge  = errors.New("file exceeds maximum size")
	ErrMediaRejected = errors.New("content type is not allowed")
)

// FilePolicy limits what an upload may contain. A nil policy accepts
// anything.
type FilePolicy struct {
	MaxFileMB float64
	// MediaTypes lists accepted types; "image/*" matches a whole family.
	MediaTypes []string
}

// ImagePolicy accepts any image/* content up to maxFileMB.
func ImagePolicy(maxFileMB float64) *FilePolicy {
	return &FilePolicy{MaxFileMB: maxFileMB, MediaTypes: []string{"image/*"}}
}

func (fp *FilePolicy) maxBytes() int64 {
	return int64(fp.MaxFileMB * 1024 * 1024)
}

// ValidateFile checks an upload's declared type and size.
func (fp *FilePolicy) ValidateFile(fileName, contentType string, size int64) error {
	if fp == nil {
		return nil
	}
	if size <= 0 {
		return fmt.Errorf("%s: %w", fileName, ErrEmptyFile)
	}
	if fp.MaxFileMB > 0 && size > fp.maxBytes() {
		return fmt.Errorf("%s: %w (%d > %d bytes, %.2f MB)", fileName, ErrFileTooLarge, size, fp.maxBytes(), fp.MaxFileMB)
	}
	if len(fp.MediaTypes) > 0 && !fp.accepts(contentType) {
		return fmt.Errorf("%s: %w: %q", fileName, ErrMediaRejected, contentType)
	}
	return nil
}

func (fp *FilePolicy) accepts(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	for _, allowed := range fp.MediaTypes {
		if family, ok := strings.CutSuffix(allowed, "/*"); ok {
			if strings.HasPrefix(mediaType, family+"/") {
				return true
			}
		} else if mediaType == allowed {
			return true
		}
	}
	return false
}
