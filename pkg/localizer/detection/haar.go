package detection

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/teslashibe/go-emotisense/pkg/localizer"
	"gocv.io/x/gocv"
)

// Haar runs a frontal-face cascade on the equalized grayscale frame.
type Haar struct {
	cascade gocv.CascadeClassifier
	scale   float64
	minN    int
	minSize image.Point
	maxSize image.Point
	mu      sync.Mutex
}

// NewHaar loads the cascade XML.
func NewHaar(cfg Config) (*Haar, error) {
	if err := requireFile("haar", cfg.HaarCascade); err != nil {
		return nil, err
	}

	cascade := gocv.NewCascadeClassifier()
	if !cascade.Load(cfg.HaarCascade) {
		cascade.Close()
		return nil, fmt.Errorf("haar: failed to load cascade %s", cfg.HaarCascade)
	}

	return &Haar{
		cascade: cascade,
		scale:   cfg.HaarScaleFactor,
		minN:    cfg.HaarMinNeighbors,
		minSize: image.Pt(cfg.HaarMinSize, cfg.HaarMinSize),
		maxSize: image.Pt(cfg.HaarMaxSize, cfg.HaarMaxSize),
	}, nil
}

// Name implements localizer.Backend.
func (d *Haar) Name() string { return "haar" }

// Detect implements localizer.Backend.
func (d *Haar) Detect(ctx context.Context, frame localizer.Frame) ([]localizer.Box, error) {
	img, err := FrameToMat(frame)
	if err != nil {
		return nil, fmt.Errorf("haar: %w", err)
	}
	defer img.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)
	gocv.EqualizeHist(gray, &gray)

	d.mu.Lock()
	defer d.mu.Unlock()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	rects := d.cascade.DetectMultiScaleWithParams(gray, d.scale, d.minN, 0, d.minSize, d.maxSize)
	boxes := make([]localizer.Box, 0, len(rects))
	for _, r := range rects {
		boxes = append(boxes, rectToBox(r))
	}
	return boxes, nil
}

// Close implements localizer.Backend.
func (d *Haar) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cascade.Close()
}
