package fsutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOS(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	fs := OS{}

	if err := fs.MkdirAll(dir); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := fs.MkdirAll(dir); err != nil {
		t.Fatalf("MkdirAll on existing dir: %v", err)
	}

	for _, name := range []string{"b.csv", "a.csv"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	files, err := fs.List(dir)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(files) != 2 || filepath.Base(files[0]) != "a.csv" || filepath.Base(files[1]) != "b.csv" {
		t.Fatalf("List = %v, want [a.csv b.csv]", files)
	}

	src, dst := filepath.Join(dir, "a.csv"), filepath.Join(dir, "c.csv")
	if err := fs.Rename(src, dst); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if ok, _ := fs.Exists(src); ok {
		t.Error("source still exists after Rename")
	}
	if ok, _ := fs.Exists(dst); !ok {
		t.Error("destination missing after Rename")
	}

	if err := fs.Remove(dst); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := fs.Remove(dst); err != nil {
		t.Errorf("Remove of missing file: %v", err)
	}

	if err := fs.RemoveAll(filepath.Dir(dir)); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}
	if ok, _ := fs.Exists(dir); ok {
		t.Error("directory still exists after RemoveAll")
	}
}
