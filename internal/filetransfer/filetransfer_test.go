package filetransfer

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSenderReadChunkSequential(t *testing.T) {
	dir := t.TempDir()
	content := []byte("0123456789")
	if err := os.WriteFile(filepath.Join(dir, "f.bin"), content, 0o644); err != nil {
 t.Fatal(err)
	}

	s := NewSender()
	info := Info{Path: "f.bin", Length: int64(len(content))}

	chunk1, err := s.ReadChunk(dir, info, 0, 4)
	if err != nil {
 t.Fatalf("ReadChunk: %v", err)
	}
	if string(chunk1) != "0123" {
 t.Errorf("chunk1 = %q", chunk1)
	}
	if s.Len() != 1 {
 t.Fatalf("Len = %d, want 1", s.Len())
	}

	chunk2, err := s.ReadChunk(dir, info, 4, 4)
	if err != nil {
 t.Fatalf("ReadChunk: %v", err)
	}
	if string(chunk2) != "4567" {
 t.Errorf("chunk2 = %q", chunk2)
	}

	chunk3, err := s.ReadChunk(dir, info, 8, 4)
	if err != nil {
 t.Fatalf("ReadChunk: %v", err)
	}
	if string(chunk3) != "89" {
 t.Errorf("chunk3 = %q", chunk3)
	}
	if s.Len() != 0 {
 t.Errorf("Len = %d after completion, want 0", s.Len())
	}
}

func TestSenderReadChunkWrongOffset(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "f.bin"), []byte("hello"), 0o644)

	s := NewSender()
	info := Info{Path: "f.bin", Length: 5}
	if _, err := s.ReadChunk(dir, info, 2, 4); !errors.Is(err, ErrProtocolViolation) {
 t.Errorf("err = %v, want ErrProtocolViolation", err)
	}
}

func TestReceiverWriteChunkLifecycle(t *testing.T) {
	dir := t.TempDir()
	r := NewReceiver()
	info := Info{Path: "out.bin", Length: 6}

	off, err := r.WriteChunk(dir, info, 0, nil)
	if err != nil {
 t.Fatalf("init WriteChunk: %v", err)
	}
	if off != 0 {
 t.Errorf("initial offset = %d, want 0", off)
	}
	if r.Len() != 1 {
 t.Fatalf("Len = %d, want 1", r.Len())
	}

	off, err = r.WriteChunk(dir, info, 0, []byte("abc"))
	if err != nil {
 t.Fatalf("WriteChunk: %v", err)
	}
	if off != 3 {
 t.Errorf("offset = %d, want 3", off)
	}

	off, err = r.WriteChunk(dir, info, 3, []byte("def"))
	if err != nil {
 t.Fatalf("WriteChunk: %v", err)
	}
	if off != 6 {
 t.Errorf("offset = %d, want 6", off)
	}
	if r.Len() != 0 {
 t.Errorf("Len = %d after completion, want 0", r.Len())
	}

	got, err := os.ReadFile(filepath.Join(dir, "out.bin"))
	if err != nil {
 t.Fatal(err)
	}
	if string(got) != "abcdef" {
 t.Errorf("file contents = %q", got)
	}
}

func TestReceiverWriteChunkOutOfOrder(t *testing.T) {
	dir := t.TempDir()
	r := NewReceiver()
	info := Info{Path: "out.bin", Length: 6}

	if _, err := r.WriteChunk(dir, info, 0, nil); err != nil {
 t.Fatal(err)
	}
	if _, err := r.WriteChunk(dir, info, 3, []byte("xyz")); !errors.Is(err, ErrProtocolViolation) {
 t.Errorf("err = %v, want ErrProtocolViolation", err)
	}
}

func TestCancelAllClosesEntries(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "f.bin"), []byte("hello"), 0o644)

	s := NewSender()
	info := Info{Path: "f.bin", Length: 5}
	if _, err := s.ReadChunk(dir, info, 0, 2); err != nil {
 t.Fatal(err)
	}
	s.CancelAll()
	if s.Len() != 0 {
 t.Errorf("Len = %d after CancelAll, want 0", s.Len())
	}
}
