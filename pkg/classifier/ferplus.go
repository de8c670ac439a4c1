package classifier

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"sync"
	"time"

	"github.com/teslashibe/go-emotisense/pkg/localizer"
	"gocv.io/x/gocv"
)

// Config holds the FER+ model location and preprocessing parameters.
type Config struct {
	ModelPath string  `yaml:"model_path"`
	CropSize  int     `yaml:"crop_size"`  // preprocessing resize
	InputSize int     `yaml:"input_size"` // network input, grayscale square
	ClipLimit float64 `yaml:"clip_limit"` // CLAHE
	TileGrid  int     `yaml:"tile_grid"`  // CLAHE
	BlurSigma float64 `yaml:"blur_sigma"` // 3x3 Gaussian

	// Timeout bounds one classification. Zero disables it.
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		ModelPath: "models/emotion-ferplus-8.onnx",
		CropSize:  224,
		InputSize: 64,
		ClipLimit: 2.0,
		TileGrid:  8,
		BlurSigma: 0.5,
		Timeout:   500 * time.Millisecond,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.CropSize <= 0 || c.InputSize <= 0 {
		return fmt.Errorf("classifier: sizes must be positive, got crop=%d input=%d", c.CropSize, c.InputSize)
	}
	if c.ClipLimit <= 0 || c.TileGrid <= 0 {
		return fmt.Errorf("classifier: invalid CLAHE params clip=%v tile=%d", c.ClipLimit, c.TileGrid)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("classifier: timeout must be >= 0, got %v", c.Timeout)
	}
	if c.BlurSigma < 0 {
		return fmt.Errorf("classifier: blur_sigma must be >= 0, got %v", c.BlurSigma)
	}
	return nil
}

// ferPlusLabels is the FER+ output order. Contempt has no counterpart in
// the seven-label set and is folded into disgust.
var ferPlusLabels = [8]string{"neutral", "happy", "surprise", "sad", "angry", "disgust", "fear", "disgust"}

// FERPlus runs the ONNX FER+ network on a preprocessed grayscale crop.
type FERPlus struct {
	net   gocv.Net
	clahe gocv.CLAHE
	cfg   Config
	mu    sync.Mutex
}

// NewFERPlus loads the FER+ model.
func NewFERPlus(cfg Config) (*FERPlus, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: model not found: %s", ErrUnavailable, cfg.ModelPath)
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("%w: failed to load %s", ErrUnavailable, cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &FERPlus{
		net:   net,
		clahe: gocv.NewCLAHEWithParams(cfg.ClipLimit, image.Pt(cfg.TileGrid, cfg.TileGrid)),
		cfg:   cfg,
	}, nil
}

// Classify implements Classifier.
func (c *FERPlus) Classify(ctx context.Context, face localizer.Frame) (map[string]float64, error) {
	if face.Empty() {
		return nil, ErrEmptyCrop
	}

	img, err := gocv.NewMatFromBytes(face.Height, face.Width, gocv.MatTypeCV8UC3, face.Pix[:face.Width*face.Height*3])
	if err != nil {
		return nil, fmt.Errorf("classifier: wrap crop: %w", err)
	}
	defer img.Close()

	c.mu.Lock()
	defer c.mu.Unlock()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	input := c.preprocess(img)
	defer input.Close()

	blob := gocv.BlobFromImage(input, 1.0, image.Pt(c.cfg.InputSize, c.cfg.InputSize),
		gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	c.net.SetInput(blob, "")
	out := c.net.Forward("")
	defer out.Close()

	logits, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("classifier: read output: %w", err)
	}
	if len(logits) < len(ferPlusLabels) {
		return nil, errors.New("classifier: unexpected output shape")
	}
	return scoresFromLogits(logits[:len(ferPlusLabels)]), nil
}

// preprocess resizes, equalizes with CLAHE and lightly blurs the crop,
// then scales it down to the network input.
func (c *FERPlus) preprocess(img gocv.Mat) gocv.Mat {
	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(img, &resized, image.Pt(c.cfg.CropSize, c.cfg.CropSize), 0, 0, gocv.InterpolationLinear)

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(resized, &gray, gocv.ColorBGRToGray)

	enhanced := gocv.NewMat()
	defer enhanced.Close()
	c.clahe.Apply(gray, &enhanced)

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(enhanced, &blurred, image.Pt(3, 3), c.cfg.BlurSigma, c.cfg.BlurSigma, gocv.BorderDefault)

	normalized := gocv.NewMat()
	defer normalized.Close()
	gocv.Normalize(blurred, &normalized, 0, 255, gocv.NormMinMax)

	input := gocv.NewMat()
	gocv.Resize(normalized, &input, image.Pt(c.cfg.InputSize, c.cfg.InputSize), 0, 0, gocv.InterpolationArea)
	return input
}

// scoresFromLogits applies softmax and folds the FER+ classes onto the
// seven-label set.
func scoresFromLogits(logits []float32) map[string]float64 {
	maxLogit := float64(logits[0])
	for _, v := range logits[1:] {
		maxLogit = math.Max(maxLogit, float64(v))
	}

	var total float64
	exp := make([]float64, len(logits))
	for i, v := range logits {
		exp[i] = math.Exp(float64(v) - maxLogit)
		total += exp[i]
	}

	scores := make(map[string]float64, 7)
	for i, e := range exp {
		scores[ferPlusLabels[i]] += e / total
	}
	return scores
}

// Close implements Classifier.
func (c *FERPlus) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clahe.Close()
	return c.net.Close()
}
