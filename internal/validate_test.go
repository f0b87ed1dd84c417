package internal

import (
	"path/filepath"
	"reflect"
	"testing"
)

func TestValidateMetadata(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"IMG_1.jpg":                "",
		"IMG_1.jpg.json":           "{}",
		"IMG_01(1).JPG":            "",
		"IMG_01.JPG(1).json":       "{}",
		"IMG_2-edited.jpg":         "",
		"IMG_2.jpg.json":           "{}",
		"PXL_3.MP":                 "",
		"PXL_3.MP.jpg.json":        "{}",
		"IMG_4.jpg":                "",
		"lost.jpg.json":            "{}",
		"print-subscriptions.json": "{}",
	})
	index, err := ScanArchive(root, nil)
	if err != nil {
		t.Fatalf("ScanArchive failed: %v", err)
	}

	v := ValidateMetadata(index)
	if v.Media != 5 || v.Sidecars != 6 {
		t.Errorf("Counted %d media, %d sidecars", v.Media, v.Sidecars)
	}
	wantOrphans := []string{
		filepath.Join(root, "lost.jpg.json"),
		filepath.Join(root, "print-subscriptions.json"),
	}
	if !reflect.DeepEqual(v.Orphans, wantOrphans) {
		t.Errorf("Orphans = %v, want %v", v.Orphans, wantOrphans)
	}
	if !reflect.DeepEqual(v.Undocumented, []string{filepath.Join(root, "IMG_4.jpg")}) {
		t.Errorf("Undocumented = %v", v.Undocumented)
	}
}
