package detection

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/teslashibe/go-emotisense/pkg/localizer"
	"gocv.io/x/gocv"
)

// YuNet wraps OpenCV's FaceDetectorYN.
type YuNet struct {
	detector gocv.FaceDetectorYN
	mu       sync.Mutex
}

// NewYuNet opens the YuNet ONNX model.
func NewYuNet(cfg Config) (*YuNet, error) {
	if err := requireFile("yunet", cfg.YuNetModel); err != nil {
		return nil, err
	}

	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.YuNetModel,
		"",
		image.Pt(cfg.InputWidth, cfg.InputHeight), // resized per frame
		float32(cfg.ConfidenceThresh),
		0.3,  // NMS threshold
		5000, // top K
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &YuNet{detector: detector}, nil
}

// Name implements localizer.Backend.
func (d *YuNet) Name() string { return "yunet" }

// Detect implements localizer.Backend.
func (d *YuNet) Detect(ctx context.Context, frame localizer.Frame) ([]localizer.Box, error) {
	img, err := FrameToMat(frame)
	if err != nil {
		return nil, fmt.Errorf("yunet: %w", err)
	}
	defer img.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	d.detector.SetInputSize(image.Pt(img.Cols(), img.Rows()))

	faces := gocv.NewMat()
	defer faces.Close()
	d.detector.Detect(img, &faces)

	// Rows: x, y, w, h, 5 landmark pairs, score.
	boxes := make([]localizer.Box, 0, faces.Rows())
	for r := 0; r < faces.Rows(); r++ {
		boxes = append(boxes, localizer.Box{
			X: int(faces.GetFloatAt(r, 0)),
			Y: int(faces.GetFloatAt(r, 1)),
			W: int(faces.GetFloatAt(r, 2)),
			H: int(faces.GetFloatAt(r, 3)),
		})
	}
	return boxes, nil
}

// Close implements localizer.Backend.
func (d *YuNet) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detector.Close()
	return nil
}
