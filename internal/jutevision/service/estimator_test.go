package service_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image/jpeg"
	"testing"

	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/service"
	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/types"
)

func TestMetricsFromDetections(t *testing.T) {
	cases := []struct {
		n    int
		want types.FrameMetrics
	}{
		{0, types.FrameMetrics{WeightKg: 12.5, DetectionCount: 0, Confidence: 0.35}},
		{1, types.FrameMetrics{WeightKg: 15.7, DetectionCount: 1, Confidence: 0.5}},
		{5, types.FrameMetrics{WeightKg: 28.5, DetectionCount: 5, Confidence: 0.9}},
		{8, types.FrameMetrics{WeightKg: 38.1, DetectionCount: 8, Confidence: 0.95}},
	}
	for _, tc := range cases {
		if got := service.MetricsFromDetections(tc.n); got != tc.want {
			t.Errorf("n=%d: expected %+v, got %+v", tc.n, tc.want, got)
		}
	}
}

func TestReplaySource_CyclesCounts(t *testing.T) {
	src := service.NewReplaySource([]int{2, 7})
	ctx := context.Background()

	var got []int
	for i := 0; i < 4; i++ {
		f, err := src.Next(ctx)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if _, err := jpeg.Decode(bytes.NewReader(f.Image)); err != nil {
			t.Fatalf("frame is not a JPEG: %v", err)
		}
		got = append(got, f.Detections)
	}
	want := []int{2, 7, 2, 7}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestReplaySource_AnalyzeReencodesAsJPEG(t *testing.T) {
	src := service.NewReplaySource([]int{3})

	annotated, n, err := src.Analyze(context.Background(), pngImage(t))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 detections, got %d", n)
	}
	if _, err := jpeg.Decode(bytes.NewReader(annotated)); err != nil {
		t.Errorf("annotated image is not a JPEG: %v", err)
	}
}

func TestReplaySource_AnalyzeRejectsNonImage(t *testing.T) {
	src := service.NewReplaySource(nil)

	_, _, err := src.Analyze(context.Background(), []byte("%PDF-1.7"))
	if !errors.Is(err, service.ErrInvalidImage) {
		t.Fatalf("expected ErrInvalidImage, got %v", err)
	}
}

// oversizedPNG returns a valid small PNG whose IHDR claims width x height.
func oversizedPNG(t *testing.T, width, height uint32) []byte {
	t.Helper()
	b := append([]byte(nil), pngImage(t)...)
	// 8-byte signature, then IHDR: length(4) type(4) data(13) crc(4).
	binary.BigEndian.PutUint32(b[16:20], width)
	binary.BigEndian.PutUint32(b[20:24], height)
	binary.BigEndian.PutUint32(b[29:33], crc32.ChecksumIEEE(b[12:29]))
	return b
}

func TestReplaySource_AnalyzeRejectsOversizedImage(t *testing.T) {
	r := service.NewReplaySource([]int{3})

	_, _, err := r.Analyze(context.Background(), oversizedPNG(t, 40000, 40000))
	if !errors.Is(err, service.ErrInvalidImage) {
		t.Fatalf("expected ErrInvalidImage, got %v", err)
	}

	// The rejected upload does not consume a replayed count.
	_, n, err := r.Analyze(context.Background(), pngImage(t))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 detections, got %d", n)
	}
}
