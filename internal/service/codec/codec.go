// Package codec converts between data-URI encoded images and gocv frames.
package codec

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"postureserver/internal/apperror"

	"gocv.io/x/gocv"
)

const (
	// JPEGDataURIPrefix is attached to every encoded frame.
	JPEGDataURIPrefix = "data:image/jpeg;base64,"
	// DefaultJPEGQuality is used when Codec.Quality is out of range.
	DefaultJPEGQuality = 90
)

// Codec decodes inbound data URIs into BGR frames and encodes annotated frames
// back into JPEG data URIs.
type Codec struct {
	Quality int
}

func New(quality int) *Codec {
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return &Codec{Quality: quality}
}

// Decode parses "<metadata>,<base64>" into a BGR frame. The caller owns the
// returned Mat and must Close it.
func (c *Codec) Decode(encoded string) (gocv.Mat, error) {
	comma := strings.IndexByte(encoded, ',')
	if comma < 0 {
		return gocv.NewMat(), apperror.Decode("image is not a data URI", nil)
	}

	raw, err := decodeBase64(strings.TrimSpace(encoded[comma+1:]))
	if err != nil {
		return gocv.NewMat(), apperror.Decode("invalid base64 image payload", err)
	}
	if len(raw) == 0 {
		return gocv.NewMat(), apperror.Decode("image payload is empty", nil)
	}

	// IMReadColor always yields 3-channel BGR, dropping alpha and converting
	// from the container's RGB layout.
	mat, err := gocv.IMDecode(raw, gocv.IMReadColor)
	if err != nil {
		return gocv.NewMat(), apperror.Decode("failed to decode image", err)
	}
	if mat.Empty() {
		mat.Close()
		return gocv.NewMat(), apperror.Decode("failed to decode image", errors.New("unsupported or corrupt image container"))
	}

	return mat, nil
}

// Encode compresses frame to JPEG and returns it as a data URI.
func (c *Codec) Encode(frame gocv.Mat) (string, error) {
	if frame.Empty() {
		return "", fmt.Errorf("cannot encode empty frame")
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, frame, []int{int(gocv.IMWriteJpegQuality), c.Quality})
	if err != nil {
		return "", fmt.Errorf("failed to encode frame: %w", err)
	}
	defer buf.Close()

	return JPEGDataURIPrefix + base64.StdEncoding.EncodeToString(buf.GetBytes()), nil
}

func decodeBase64(payload string) ([]byte, error) {
	if strings.HasSuffix(payload, "=") || len(payload)%4 == 0 {
		return base64.StdEncoding.DecodeString(payload)
	}
	return base64.RawStdEncoding.DecodeString(payload)
}
