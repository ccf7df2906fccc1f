package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"chirp/internal/config"
	"chirp/internal/models"

	"github.com/chai2010/webp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

const (
	DefaultMediaDir             = "media"
	DefaultImageMaxUploadSizeMB = 5
	MasterMaxSize               = 2048
	WebPQuality                 = 80
)

// ImageService validates post images and stores them as WebP under the media dir.
type ImageService struct {
	dir                string
	maxUploadSizeBytes int64
}

func NewImageService(cfg *config.Config) *ImageService {
	dir := DefaultMediaDir
	maxUploadSizeMB := DefaultImageMaxUploadSizeMB

	if cfg != nil {
		if cfg.MediaDir != "" {
			dir = cfg.MediaDir
		}
		if cfg.ImageMaxUploadSizeMB > 0 {
			maxUploadSizeMB = cfg.ImageMaxUploadSizeMB
		}
	}

	return &ImageService{
		dir:                dir,
		maxUploadSizeBytes: int64(maxUploadSizeMB) * 1024 * 1024,
	}
}

// Dir is the directory served under /media.
func (s *ImageService) Dir() string { return s.dir }

// MaxUploadSizeBytes is the largest accepted upload.
func (s *ImageService) MaxUploadSizeBytes() int64 { return s.maxUploadSizeBytes }

// Validate checks size and sniffed content type without decoding.
func (s *ImageService) Validate(content []byte) error {
	if int64(len(content)) > s.maxUploadSizeBytes {
		return models.NewFieldValidationError("image",
			fmt.Sprintf("Image file size should not exceed %dMB.", s.maxUploadSizeBytes/(1024*1024)))
	}
	if !strings.HasPrefix(http.DetectContentType(content), "image/") {
		return models.NewFieldValidationError("image", "Uploaded file must be an image.")
	}
	return nil
}

// Save normalizes content to a bounded WebP and returns its path relative to Dir.
// Identical images map to the same file.
func (s *ImageService) Save(_ context.Context, content []byte) (string, error) {
	if len(content) == 0 {
		return "", models.NewFieldValidationError("image", "The submitted file is empty.")
	}
	if err := s.Validate(content); err != nil {
		return "", err
	}

	decoded, _, err := image.Decode(bytes.NewReader(content))
	if err != nil {
		return "", models.NewFieldValidationError("image", "Uploaded file must be an image.")
	}

	master := resizeToFit(decoded, MasterMaxSize, MasterMaxSize)
	encoded, err := encodeWebP(master, WebPQuality)
	if err != nil {
		return "", models.NewInternalError(err)
	}

	rel := contentHash(encoded) + ".webp"
	abs := filepath.Join(s.dir, rel)
	if _, err := os.Stat(abs); err == nil {
		return rel, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", models.NewInternalError(err)
	}
	if err := writeBytesToFile(abs, encoded); err != nil {
		return "", models.NewInternalError(err)
	}
	return rel, nil
}

func resizeToFit(src image.Image, maxWidth, maxHeight int) image.Image {
	bounds := src.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	if w <= 0 || h <= 0 {
		return src
	}
	if w <= maxWidth && h <= maxHeight {
		return src
	}

	scaleW := float64(maxWidth) / float64(w)
	scaleH := float64(maxHeight) / float64(h)
	scale := scaleW
	if scaleH < scale {
		scale = scaleH
	}
	newW := int(float64(w) * scale)
	newH := int(float64(h) * scale)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)
	return dst
}

func encodeWebP(img image.Image, quality int) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := webp.Encode(buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func writeBytesToFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
