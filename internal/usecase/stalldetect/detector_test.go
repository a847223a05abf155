package stalldetect

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"uipilot/internal/domain/entity"
)

func solidShot(t *testing.T, c color.Color) *entity.Screenshot {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test image: %v", err)
	}
	return &entity.Screenshot{Data: buf.Bytes(), Format: "png", Width: 64, Height: 48}
}

func splitShot(t *testing.T) *entity.Screenshot {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			if x < 32 {
				img.Set(x, y, color.White)
			} else {
				img.Set(x, y, color.Black)
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test image: %v", err)
	}
	return &entity.Screenshot{Data: buf.Bytes(), Format: "png", Width: 64, Height: 48}
}

func TestCheck_InsufficientHistoryNeverStalls(t *testing.T) {
	d := New(Config{WindowSize: 3, Tolerance: 0})

	for i := 0; i < 2; i++ {
		stalled, _, err := d.Check(solidShot(t, color.White))
		if err != nil {
			t.Fatalf("Check failed: %v", err)
		}
		if stalled {
			t.Fatalf("stalled=true after %d screenshots, window is 3", i+1)
		}
	}
}

func TestCheck_IdenticalRunStalls(t *testing.T) {
	d := New(DefaultConfig())

	if stalled, _, _ := d.Check(solidShot(t, color.White)); stalled {
		t.Fatal("first screenshot must not stall")
	}

	stalled, reason, err := d.Check(solidShot(t, color.White))
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !stalled {
		t.Error("expected stall for identical screenshots")
	}
	if reason == "" {
		t.Error("expected a non-empty stall reason")
	}
}

func TestCheck_DifferingHashClears(t *testing.T) {
	d := New(DefaultConfig())

	d.Check(solidShot(t, color.White))
	d.Check(solidShot(t, color.White))

	stalled, _, err := d.Check(splitShot(t))
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if stalled {
		t.Error("differing screenshot must clear the stall run")
	}

	// One matching screenshot after the change is again a full window.
	stalled, _, _ = d.Check(splitShot(t))
	if !stalled {
		t.Error("expected stall after the new screen repeated")
	}
}

func TestReset_DiscardsHistory(t *testing.T) {
	d := New(DefaultConfig())

	d.Check(solidShot(t, color.White))
	if stalled, _, _ := d.Check(solidShot(t, color.White)); !stalled {
		t.Fatal("expected stall before reset")
	}

	d.Reset()

	stalled, _, err := d.Check(solidShot(t, color.White))
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if stalled {
		t.Error("first screenshot after reset must not stall")
	}
}

func TestCheck_DecodeErrorSurfaces(t *testing.T) {
	d := New(DefaultConfig())

	_, _, err := d.Check(&entity.Screenshot{Data: []byte("not an image")})
	if err == nil {
		t.Error("expected decode error")
	}
}

func TestDistance_DifferentLayoutsFarApart(t *testing.T) {
	white, err := Hash(solidShot(t, color.White))
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	split, err := Hash(splitShot(t))
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	if d := Distance(white, split); d <= DefaultConfig().Tolerance {
		t.Errorf("expected distance above tolerance, got %d", d)
	}
	if d := Distance(white, white); d != 0 {
		t.Errorf("identical hash distance = %d, want 0", d)
	}
}
