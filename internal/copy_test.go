package internal

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// saveTestImage writes a small gradient JPEG. The encoder writes no EXIF
// segment, which is what the native extractor tests rely on.
func saveTestImage(t *testing.T, path string, width, height int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x * 255) / width),
				G: uint8((y * 255) / height),
				B: uint8((x + y) % 255),
				A: 255,
			})
		}
	}

	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create %s: %v", path, err)
	}
	defer file.Close()
	if err := jpeg.Encode(file, img, &jpeg.Options{Quality: 80}); err != nil {
		t.Fatalf("Failed to encode %s: %v", path, err)
	}
}

func TestCopyFileAtomic(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.jpg")
	dest := filepath.Join(dir, "dest.jpg")
	saveTestImage(t, src, 64, 48)

	mtime := time.Date(2015, 6, 7, 8, 9, 10, 0, time.UTC)
	if err := os.Chtimes(src, mtime, mtime); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}

	if err := copyFileAtomic(src, dest); err != nil {
		t.Fatalf("copyFileAtomic failed: %v", err)
	}
	if err := verifyCopy(src, dest); err != nil {
		t.Errorf("Copy differs from source: %v", err)
	}
	info, err := os.Stat(dest)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if !info.ModTime().Equal(mtime) {
		t.Errorf("ModTime = %s, want %s", info.ModTime(), mtime)
	}
	if _, err := os.Stat(dest + ".tmp"); !os.IsNotExist(err) {
		t.Error("Temporary file left behind")
	}
}

func TestVerifyCopy_Mismatch(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.jpg": "data1", "b.jpg": "data2"})

	err := verifyCopy(filepath.Join(dir, "a.jpg"), filepath.Join(dir, "b.jpg"))
	if err == nil || !strings.Contains(err.Error(), "hash verification failed") {
		t.Errorf("Expected hash verification error, got %v", err)
	}
}

func TestMoveFile(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.jpg": "data"})
	src := filepath.Join(dir, "a.jpg")
	dest := filepath.Join(dir, "b.jpg")

	if err := moveFile(src, dest); err != nil {
		t.Fatalf("moveFile failed: %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("Source still exists after move")
	}
	data, err := os.ReadFile(dest)
	if err != nil || string(data) != "data" {
		t.Errorf("Destination content = %q, %v", data, err)
	}
}

func TestNativeExtractor_JPEGWithoutExif(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plain.jpg")
	saveTestImage(t, path, 32, 32)

	_, err := NewNativeExtractor().ExtractTags(context.Background(), path)
	if !errors.Is(err, ErrToolInvocation) {
		t.Fatalf("Expected ErrToolInvocation for a JPEG without EXIF, got %v", err)
	}
}
