package capture

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/teslashibe/go-emotisense/pkg/localizer"
	"gocv.io/x/gocv"
)

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// Dir replays the still images of a directory in name order, looping.
type Dir struct {
	dir    string
	paths  []string
	logger *slog.Logger

	mu     sync.Mutex
	next   int
	closed bool
}

// OpenDir lists the images under dir.
func OpenDir(dir string, logger *slog.Logger) (*Dir, error) {
	if logger == nil {
		logger = slog.Default()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no images in %s", ErrUnavailable, dir)
	}
	sort.Strings(paths)

	logger.Debug("image directory opened", "dir", dir, "frames", len(paths))
	return &Dir{dir: dir, paths: paths, logger: logger}, nil
}

// Name implements Source.
func (d *Dir) Name() string {
	return "files:" + d.dir
}

// Len returns the number of images in the loop.
func (d *Dir) Len() int {
	return len(d.paths)
}

// Read decodes the next image.
func (d *Dir) Read(ctx context.Context) (localizer.Frame, error) {
	if err := ctx.Err(); err != nil {
		return localizer.Frame{}, err
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return localizer.Frame{}, ErrClosed
	}
	path := d.paths[d.next]
	d.next = (d.next + 1) % len(d.paths)
	d.mu.Unlock()

	img := gocv.IMRead(path, gocv.IMReadColor)
	defer img.Close()
	if img.Empty() {
		return localizer.Frame{}, fmt.Errorf("%w: cannot decode %s", ErrUnavailable, path)
	}
	return matToFrame(img)
}

// Close stops the replay.
func (d *Dir) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}
