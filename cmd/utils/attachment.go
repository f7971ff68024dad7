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
	MaxAttachmentSize = 10 << 20 // 10 MB
	AttachmentPath    = "uploads/attachments"
)

// SaveAttachment stores an uploaded consultation attachment and returns its
// URL path. Filenames are regenerated so user input never reaches the disk.
func SaveAttachment(file multipart.File, header *multipart.FileHeader) (string, error) {
	if header.Size > MaxAttachmentSize {
		return "", fmt.Errorf("file size exceeds maximum limit of %d MB", MaxAttachmentSize/(1<<20))
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !isValidAttachmentType(ext) {
		return "", fmt.Errorf("invalid file type: %s", ext)
	}

	if err := os.MkdirAll(AttachmentPath, 0755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %v", err)
	}

	filename := fmt.Sprintf("%s-%s%s",
		time.Now().Format("20060102"),
		uuid.New().String(),
		ext,
	)
	filePath := filepath.Join(AttachmentPath, filename)

	dst, err := os.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %v", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		return "", fmt.Errorf("failed to save file: %v", err)
	}

	return fmt.Sprintf("/uploads/%s", filename), nil
}

func isValidAttachmentType(ext string) bool {
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".pdf":
		return true
	}
	return false
}
