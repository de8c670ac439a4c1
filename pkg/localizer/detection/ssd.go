package detection

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/teslashibe/go-emotisense/pkg/localizer"
	"gocv.io/x/gocv"
)

// ssdInput is the ResNet-10 SSD input resolution.
const ssdInput = 300

// SSD runs the OpenCV ResNet-10 SSD face network.
type SSD struct {
	net    gocv.Net
	thresh float32
	mu     sync.Mutex
}

// NewSSD loads the Caffe prototxt and weights.
func NewSSD(cfg Config) (*SSD, error) {
	if err := requireFile("ssd prototxt", cfg.SSDPrototxt); err != nil {
		return nil, err
	}
	if err := requireFile("ssd", cfg.SSDModel); err != nil {
		return nil, err
	}

	net := gocv.ReadNetFromCaffe(cfg.SSDPrototxt, cfg.SSDModel)
	if net.Empty() {
		return nil, errors.New("ssd: failed to load network")
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &SSD{net: net, thresh: float32(cfg.ConfidenceThresh)}, nil
}

// Name implements localizer.Backend.
func (d *SSD) Name() string { return "ssd" }

// Detect implements localizer.Backend.
func (d *SSD) Detect(ctx context.Context, frame localizer.Frame) ([]localizer.Box, error) {
	img, err := FrameToMat(frame)
	if err != nil {
		return nil, fmt.Errorf("ssd: %w", err)
	}
	defer img.Close()

	blob := gocv.BlobFromImage(img, 1.0, image.Pt(ssdInput, ssdInput),
		gocv.NewScalar(104, 177, 123, 0), false, false)
	defer blob.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("ssd: read output: %w", err)
	}
	return parseSSD(data, d.thresh, frame.Width, frame.Height), nil
}

// parseSSD decodes the [1,1,N,7] output: image id, class, score and a
// normalized x1,y1,x2,y2 box per row.
func parseSSD(data []float32, thresh float32, width, height int) []localizer.Box {
	var boxes []localizer.Box
	for i := 0; i+7 <= len(data); i += 7 {
		if data[i+2] < thresh {
			continue
		}
		x1 := int(data[i+3] * float32(width))
		y1 := int(data[i+4] * float32(height))
		x2 := int(data[i+5] * float32(width))
		y2 := int(data[i+6] * float32(height))
		if x2 <= x1 || y2 <= y1 {
			continue
		}
		boxes = append(boxes, localizer.Box{X: x1, Y: y1, W: x2 - x1, H: y2 - y1})
	}
	return boxes
}

// Close implements localizer.Backend.
func (d *SSD) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
