package upload

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/cuongbtq/imagejob-service/internal/api/domain"
	"github.com/google/uuid"
)

const (
	DefaultMinSize int64 = 10
	DefaultMaxSize int64 = 10 * 1024 * 1024
	DefaultBaseURL       = "https://storage.local"

	fallbackFilename = "upload"
)

var (
	jpegSignature = []byte{0xFF, 0xD8, 0xFF}
	pngSignature  = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	riffSignature = []byte("RIFF")
	webpSignature = []byte("WEBP")

	unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)
	repeatedUnderscores = regexp.MustCompile(`_+`)
)

// Config holds the upload bounds and the base of fabricated URLs
type Config struct {
	MinSize int64
	MaxSize int64
	BaseURL string
}

// Validator checks base64 image uploads and fabricates their storage URL.
// It never touches disk or network.
type Validator struct {
	config Config
	now    func() time.Time
	suffix func() string
}

// Option customizes a Validator
type Option func(*Validator)

// WithClock overrides the time source used in generated URLs
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		v.now = now
	}
}

// WithSuffix overrides the random URL component
func WithSuffix(suffix func() string) Option {
	return func(v *Validator) {
		v.suffix = suffix
	}
}

// NewValidator creates a Validator. Zero config values fall back to the defaults.
func NewValidator(config Config, opts ...Option) *Validator {
	if config.MinSize <= 0 {
		config.MinSize = DefaultMinSize
	}
	if config.MaxSize <= 0 {
		config.MaxSize = DefaultMaxSize
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	v := &Validator{
		config: config,
		now:    time.Now,
		suffix: randomSuffix,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate decodes data, checks it against contentType and the size bounds, and returns
// the fabricated URL with the decoded size.
//
// Failures are ErrInvalidFormat (empty, undecodable, under the floor, unsupported type or
// signature mismatch) or ErrTooLarge (well-formed but over the ceiling).
func (v *Validator) Validate(filename, data, contentType string) (*domain.UploadResult, error) {
	payload := stripDataURLPrefix(strings.TrimSpace(data))
	if payload == "" {
		return nil, fmt.Errorf("%w: empty payload", domain.ErrInvalidFormat)
	}

	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: payload is not valid base64", domain.ErrInvalidFormat)
	}

	size := int64(len(decoded))
	if size < v.config.MinSize {
		return nil, fmt.Errorf("%w: file is %d bytes, minimum is %d", domain.ErrInvalidFormat, size, v.config.MinSize)
	}

	if err := checkSignature(decoded, contentType); err != nil {
		return nil, err
	}

	if size > v.config.MaxSize {
		return nil, fmt.Errorf("%w: file is %d bytes, maximum is %d", domain.ErrTooLarge, size, v.config.MaxSize)
	}

	url := fmt.Sprintf("%s/uploads/%d-%s-%s",
		v.config.BaseURL,
		v.now().UnixMilli(),
		v.suffix(),
		SanitizeFilename(filename),
	)

	return &domain.UploadResult{URL: url, Size: size}, nil
}

// checkSignature compares the leading bytes of data with the magic number of contentType
func checkSignature(data []byte, contentType string) error {
	mime := normalizeContentType(contentType)

	var ok bool
	switch mime {
	case "image/jpeg", "image/jpg":
		ok = bytes.HasPrefix(data, jpegSignature)
	case "image/png":
		ok = bytes.HasPrefix(data, pngSignature)
	case "image/webp":
		ok = len(data) >= 12 &&
			bytes.Equal(data[0:4], riffSignature) &&
			bytes.Equal(data[8:12], webpSignature)
	default:
		return fmt.Errorf("%w: unsupported content type %q", domain.ErrInvalidFormat, contentType)
	}

	if !ok {
		return fmt.Errorf("%w: content does not match %s", domain.ErrInvalidFormat, mime)
	}
	return nil
}

func normalizeContentType(contentType string) string {
	mime, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mime))
}

// stripDataURLPrefix removes a leading "data:<mime>;base64," if present
func stripDataURLPrefix(data string) string {
	if !strings.HasPrefix(data, "data:") {
		return data
	}
	if _, payload, found := strings.Cut(data, ";base64,"); found {
		return payload
	}
	return data
}

// SanitizeFilename keeps [A-Za-z0-9._-], maps everything else to a single underscore
// and trims underscores at both ends. An empty result becomes "upload".
func SanitizeFilename(name string) string {
	cleaned := unsafeFilenameChars.ReplaceAllString(name, "_")
	cleaned = repeatedUnderscores.ReplaceAllString(cleaned, "_")
	cleaned = strings.Trim(cleaned, "_")
	if cleaned == "" {
		return fallbackFilename
	}
	return cleaned
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
