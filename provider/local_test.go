package provider

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLocalProvider_Stat(t *testing.T) {
	tempBase := t.TempDir()
	p := NewLocalProvider(tempBase)
	ctx := context.Background()

	testFile := "lecture.mp4"
	testContent := []byte("hello stat")
	if err := os.WriteFile(filepath.Join(tempBase, testFile), testContent, 0644); err != nil {
		t.Fatal(err)
	}

	info, err := p.Stat(ctx, testFile)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Name() != testFile {
		t.Errorf("expected %q, got %q", testFile, info.Name())
	}
	if info.Size() != int64(len(testContent)) {
		t.Errorf("expected size %d, got %d", len(testContent), info.Size())
	}
	if info.IsDir() {
		t.Errorf("expected isDir to be false")
	}
}

func TestLocalProvider_List(t *testing.T) {
	tempBase := t.TempDir()
	if err := os.MkdirAll(filepath.Join(tempBase, "series", "nested"), 0755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"a.mp4", ".a.mp4"} {
		if err := os.WriteFile(filepath.Join(tempBase, "series", name), []byte(name), 0644); err != nil {
			t.Fatal(err)
		}
	}

	p := NewLocalProvider(tempBase)
	infos, err := p.List(context.Background(), "series")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(infos) != 3 {
		t.Fatalf("expected 3 items, got %d", len(infos))
	}

	dirs := 0
	for _, info := range infos {
		if info.IsDir() {
			dirs++
			if info.Name() != "nested" {
				t.Errorf("unexpected directory %q", info.Name())
			}
		}
	}
	if dirs != 1 {
		t.Errorf("expected 1 directory, got %d", dirs)
	}
}

func TestLocalProvider_ListFollowsSymlinks(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "series")
	if err := os.MkdirAll(filepath.Join(base, "elsewhere"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	target := filepath.Join(base, "elsewhere", "real.mp4")
	if err := os.WriteFile(target, []byte("video"), 0644); err != nil {
		t.Fatal(err)
	}
	links := map[string]string{
		"file.mp4": target,
		"dir.mp4":  filepath.Join(base, "elsewhere"),
		"gone.mp4": filepath.Join(base, "missing"),
	}
	for name, to := range links {
		if err := os.Symlink(to, filepath.Join(dir, name)); err != nil {
			t.Skipf("symlinks not supported: %v", err)
		}
	}

	infos, err := NewLocalProvider(base).List(context.Background(), "series")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	got := map[string]FileInfo{}
	for _, info := range infos {
		got[info.Name()] = info
	}
	if _, ok := got["gone.mp4"]; ok {
		t.Error("dangling link should be skipped")
	}
	if f, ok := got["file.mp4"]; !ok || !IsRegular(f) || f.Size() != 5 {
		t.Errorf("link to a file should list as a regular file: %+v", f)
	}
	if d, ok := got["dir.mp4"]; !ok || IsRegular(d) || !d.IsDir() {
		t.Errorf("link to a directory should list as a directory: %+v", d)
	}
}

func TestLocalProvider_ListMissingDir(t *testing.T) {
	p := NewLocalProvider(t.TempDir())

	_, err := p.List(context.Background(), "does-not-exist")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestLocalProvider_MkdirAllAndRemove(t *testing.T) {
	tempBase := t.TempDir()
	p := NewLocalProvider(tempBase)
	ctx := context.Background()

	if err := p.MkdirAll(ctx, "out/deep"); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	info, err := p.Stat(ctx, "out/deep")
	if err != nil || !info.IsDir() {
		t.Fatalf("expected directory, got info=%v err=%v", info, err)
	}

	target := filepath.Join("out", "deep", "x.mp4")
	if err := os.WriteFile(filepath.Join(tempBase, target), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := p.Remove(ctx, target); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempBase, target)); !os.IsNotExist(err) {
		t.Errorf("expected file to be removed, stat err=%v", err)
	}
}

func TestLocalProvider_CancelledContext(t *testing.T) {
	p := NewLocalProvider(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.List(ctx, "."); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

type dummyFileInfo struct {
	name    string
	size    int64
	isDir   bool
	modTime time.Time
}

func (d *dummyFileInfo) Name() string       { return d.name }
func (d *dummyFileInfo) Size() int64        { return d.size }
func (d *dummyFileInfo) IsDir() bool        { return d.isDir }
func (d *dummyFileInfo) ModTime() time.Time { return d.modTime }

func TestLocalProvider_OpenWrite(t *testing.T) {
	tempBase := t.TempDir()
	p := NewLocalProvider(tempBase)
	ctx := context.Background()

	testFile := "nested/test-write.txt"
	testContent := []byte("hello write")
	testModTime := time.Date(2022, 1, 1, 12, 0, 0, 0, time.UTC)

	wc, err := p.OpenWrite(ctx, testFile, &dummyFileInfo{name: "test-write.txt", modTime: testModTime})
	if err != nil {
		t.Fatalf("OpenWrite failed: %v", err)
	}
	if _, err := wc.Write(testContent); err != nil {
		t.Errorf("Write failed: %v", err)
	}
	if err := wc.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}

	fullPath := filepath.Join(tempBase, testFile)
	readContent, err := os.ReadFile(fullPath)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !bytes.Equal(readContent, testContent) {
		t.Errorf("expected content %q, got %q", testContent, readContent)
	}

	stat, err := os.Stat(fullPath)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if !stat.ModTime().Equal(testModTime) {
		t.Errorf("expected mod time %v, got %v", testModTime, stat.ModTime())
	}
}

func TestLocalToLocalCopyKeepsMode(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(srcDir, "perms.mp4"), []byte("video"), 0600); err != nil {
		t.Fatal(err)
	}

	src := NewLocalProvider(srcDir)
	dst := NewLocalProvider(dstDir)
	ctx := context.Background()

	info, err := src.Stat(ctx, "perms.mp4")
	if err != nil {
		t.Fatal(err)
	}
	r, err := src.OpenRead(ctx, "perms.mp4")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	w, err := dst.OpenWrite(ctx, "perms.mp4", info)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.Copy(w, r); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	stat, err := os.Stat(filepath.Join(dstDir, "perms.mp4"))
	if err != nil {
		t.Fatal(err)
	}
	if stat.Mode().Perm() != 0600 {
		t.Errorf("expected mode 0600, got %v", stat.Mode().Perm())
	}
}
