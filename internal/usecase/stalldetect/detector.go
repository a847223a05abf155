package stalldetect

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math/bits"

	"github.com/disintegration/imaging"

	"uipilot/internal/domain/entity"
)

// Detector flags a stalled UI: a reportedly successful action after
// which the screen shows no visual change. It keeps a bounded window of
// perceptual hashes and never trusts a locator's self-reported success.
type Detector struct {
	cfg    Config
	hashes []uint64
}

type Config struct {
	// WindowSize is how many consecutive matching screenshots count as
	// a stall.
	WindowSize int
	// Tolerance is the maximum Hamming distance between two hashes that
	// still counts as "no change". The hash is a 64-bit dHash, so small
	// values absorb compression noise without hiding real transitions.
	Tolerance int
}

func DefaultConfig() Config {
	return Config{
		WindowSize: 2,
		Tolerance:  4,
	}
}

func New(cfg Config) *Detector {
	if cfg.WindowSize < 2 {
		cfg.WindowSize = 2
	}
	if cfg.Tolerance < 0 {
		cfg.Tolerance = 0
	}
	return &Detector{cfg: cfg}
}

// Check records the screenshot and reports whether the last WindowSize
// screenshots are visually identical. The first WindowSize-1 calls of a
// session never flag: there is not enough history yet.
func (d *Detector) Check(shot *entity.Screenshot) (bool, string, error) {
	h, err := Hash(shot)
	if err != nil {
		return false, "", err
	}

	d.hashes = append(d.hashes, h)
	if len(d.hashes) > d.cfg.WindowSize {
		d.hashes = d.hashes[len(d.hashes)-d.cfg.WindowSize:]
	}

	if len(d.hashes) < d.cfg.WindowSize {
		return false, "", nil
	}

	newest := d.hashes[len(d.hashes)-1]
	for _, prev := range d.hashes[:len(d.hashes)-1] {
		if Distance(newest, prev) > d.cfg.Tolerance {
			return false, "", nil
		}
	}

	return true, fmt.Sprintf("no visual change across last %d screenshots (hash tolerance %d)",
		d.cfg.WindowSize, d.cfg.Tolerance), nil
}

// Reset discards the window, e.g. after a recovery navigation.
func (d *Detector) Reset() {
	d.hashes = nil
}

// Hash computes a 64-bit dHash: the image is reduced to a 9x8 grayscale
// thumbnail and each bit records whether a pixel is brighter than its
// right neighbor. Layout-sensitive, tolerant of JPEG noise.
func Hash(shot *entity.Screenshot) (uint64, error) {
	img, _, err := image.Decode(bytes.NewReader(shot.Data))
	if err != nil {
		return 0, fmt.Errorf("decode screenshot: %w", err)
	}

	thumb := imaging.Grayscale(imaging.Resize(img, 9, 8, imaging.Lanczos))

	var h uint64
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			left, _, _, _ := thumb.At(x, y).RGBA()
			right, _, _, _ := thumb.At(x+1, y).RGBA()
			h <<= 1
			if left > right {
				h |= 1
			}
		}
	}
	return h, nil
}

// Distance is the Hamming distance between two hashes.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}
