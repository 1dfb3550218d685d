package engine

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/liliang-cn/hatvec"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memory.hatx")

	eng := New(cfg3())
	eng.NewSession()
	id1, err := eng.Place(hatvec.Point{1, 0, 0}, hatvec.Blob("first"))
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	eng.NewDocument()
	id2, err := eng.Place(hatvec.Point{0, 1, 0}, hatvec.Blob("second"))
	if err != nil {
		t.Fatalf("place: %v", err)
	}

	if err := eng.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path, 3)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if loaded.Stats() != eng.Stats() {
		t.Fatalf("stats mismatch: got %+v, want %+v", loaded.Stats(), eng.Stats())
	}

	hits, err := loaded.NearWithData(hatvec.Point{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("near: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("len(hits) = %d, want 2", len(hits))
	}
	var sawFirst, sawSecond bool
	for _, h := range hits {
		switch h.ID {
		case id1:
			sawFirst = string(h.Payload) == "first"
		case id2:
			sawSecond = string(h.Payload) == "second"
		}
	}
	if !sawFirst || !sawSecond {
		t.Fatalf("loaded engine missing expected payloads: hits=%+v", hits)
	}
}

func TestLoadRejectsDimensionMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memory.hatx")

	eng := New(cfg3())
	eng.Place(hatvec.Point{1, 0, 0}, nil)
	if err := eng.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := Load(path, 5); !errors.Is(err, hatvec.ErrDimensionMismatch) {
		t.Fatalf("err = %v, want ErrDimensionMismatch", err)
	}
}

func TestLoadAcceptsFileDimensionWhenUnspecified(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memory.hatx")

	eng := New(cfg3())
	eng.Place(hatvec.Point{1, 0, 0}, nil)
	if err := eng.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path, 0)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", loaded.Len())
	}
}

func TestLoadRejectsCorruptedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memory.hatx")

	eng := New(cfg3())
	eng.Place(hatvec.Point{1, 0, 0}, nil)
	if err := eng.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	// Flip a byte in the middle of the body, leaving the trailing CRC
	// untouched, so the CRC check must catch the corruption.
	data[len(data)/2] ^= 0xFF
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := Load(path, 3); !errors.Is(err, hatvec.ErrFormat) {
		t.Fatalf("err = %v, want ErrFormat", err)
	}
}

func TestLoadRejectsTruncatedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memory.hatx")

	eng := New(cfg3())
	eng.Place(hatvec.Point{1, 0, 0}, nil)
	if err := eng.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := os.WriteFile(path, data[:len(data)/2], 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := Load(path, 3); err == nil {
		t.Fatalf("expected an error loading a truncated file")
	}
}

func TestSaveIsAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memory.hatx")

	eng := New(cfg3())
	eng.Place(hatvec.Point{1, 0, 0}, nil)
	if err := eng.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	for _, e := range entries {
		matched, _ := filepath.Match(".hatx-tmp-*", e.Name())
		if matched {
			t.Fatalf("temp file left behind after save: %s", e.Name())
		}
	}
}
