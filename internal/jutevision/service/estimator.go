package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	_ "image/png"
	"math"
	"sync"

	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/types"
)

var (
	ErrNoFrame      = errors.New("no frame available")
	ErrInvalidImage = errors.New("file must be an image")
)

// Weight heuristic: each detected bale adds a fixed mass on top of a base
// load. Replace with a calibrated model when one exists.
const (
	baseWeightKg      = 12.5
	perDetectionKg    = 3.2
	baseConfidence    = 0.4
	perDetectionConf  = 0.1
	maxConfidence     = 0.95
	emptyConfidence   = 0.35
	jpegQuality       = 85
	placeholderWidth  = 320
	placeholderHeight = 240

	// Uploads declaring more pixels than this are refused before decoding.
	maxImagePixels = 40_000_000
)

// Frame is one annotated camera frame and the number of bales found in it.
type Frame struct {
	Image      []byte
	Detections int
}

// FrameSource yields the current camera frame.
type FrameSource interface {
	Next(ctx context.Context) (Frame, error)
}

// ImageAnalyzer runs detection over a submitted image and returns the
// annotated JPEG.
type ImageAnalyzer interface {
	Analyze(ctx context.Context, img []byte) (annotated []byte, detections int, err error)
}

// MetricsFromDetections applies the weight heuristic to a detection count.
func MetricsFromDetections(n int) types.FrameMetrics {
	if n < 0 {
		n = 0
	}
	conf := emptyConfidence
	if n > 0 {
		conf = math.Min(maxConfidence, baseConfidence+perDetectionConf*float64(n))
	}
	return types.FrameMetrics{
		WeightKg:       round1(baseWeightKg + perDetectionKg*float64(n)),
		DetectionCount: n,
		Confidence:     math.Round(conf*100) / 100,
	}
}

// ReplaySource stands in for the camera and the detector. Frames and
// analyzed uploads cycle through a fixed list of detection counts.
type ReplaySource struct {
	counts []int

	mu    sync.Mutex
	next  int
	frame []byte
}

// NewReplaySource returns a source cycling counts. An empty list always
// reports zero detections.
func NewReplaySource(counts []int) *ReplaySource {
	if len(counts) == 0 {
		counts = []int{0}
	}
	return &ReplaySource{counts: append([]int(nil), counts...)}
}

func (r *ReplaySource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frame == nil {
		b, err := placeholderFrame()
		if err != nil {
			return Frame{}, fmt.Errorf("%w: %w", ErrNoFrame, err)
		}
		r.frame = b
	}
	return Frame{Image: r.frame, Detections: r.advance()}, nil
}

// Analyze decodes img, re-encodes it as JPEG and assigns it the next
// replayed detection count.
func (r *ReplaySource) Analyze(ctx context.Context, img []byte) ([]byte, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > maxImagePixels {
		return nil, 0, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrInvalidImage, cfg.Width, cfg.Height, maxImagePixels)
	}

	decoded, _, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, decoded, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, 0, fmt.Errorf("encode annotated image: %w", err)
	}

	r.mu.Lock()
	n := r.advance()
	r.mu.Unlock()
	return buf.Bytes(), n, nil
}

// advance must be called with r.mu held.
func (r *ReplaySource) advance() int {
	n := r.counts[r.next%len(r.counts)]
	r.next++
	return n
}

func placeholderFrame() ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, placeholderWidth, placeholderHeight))
	// Jute brown.
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{R: 0xa6, G: 0x7b, B: 0x4f, A: 0xff}}, image.Point{}, draw.Src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
