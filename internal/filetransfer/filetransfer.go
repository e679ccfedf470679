// Package filetransfer implements the chunked file send/receive
// sub-protocol: a sender reads chunks off disk in strict
// offset order, a receiver writes them back in the order they arrive,
// and a thumbnail travels through a separate slot so it never collides
// with the file it decorates.
package filetransfer

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// ErrProtocolViolation is returned when a chunk arrives out of order: the
// caller drops the frame and logs, it does not reset the transfer
// automatically.
var ErrProtocolViolation = errors.New("filetransfer: protocol violation")

// Info is the subset of a descriptor.File the transfer tables need: the
// relative path used as both the table key and the on-disk file name, and
// the declared total length.
type Info struct {
	Path string
	Length int64
}

type sendEntry struct {
	file *os.File
	length int64
	currentOffset int64
}

type recvEntry struct {
	file *os.File
	length int64
	currentOffset int64
}

// Sender tracks outbound file transfers, one entry per path. The zero value is ready to use.
type Sender struct {
	mu sync.Mutex
	sending map[string]*sendEntry
}

// NewSender returns an empty Sender.
func NewSender() *Sender {
	return &Sender{sending: make(map[string]*sendEntry)}
}

// ReadChunk opens the file handle lazily on first call, verifies
// chunkStart matches the entry's currentOffset, reads at most chunkSize
// bytes (less near the end of the file), advances the offset, and returns
// the buffer. When the read reaches the declared length, the entry is
// closed and removed. filesDir is joined with info.Path to resolve the
// file on disk.
func (s *Sender) ReadChunk(filesDir string, info Info, chunkStart int64, chunkSize int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sending == nil {
 s.sending = make(map[string]*sendEntry)
	}
	e, ok := s.sending[info.Path]
	if !ok {
 f, err := os.Open(filepath.Join(filesDir, info.Path))
 if err != nil {
 return nil, fmt.Errorf("filetransfer: open %s: %w", info.Path, err)
 }
 e = &sendEntry{file: f, length: info.Length}
 s.sending[info.Path] = e
	}

	if chunkStart != e.currentOffset {
 return nil, fmt.Errorf("%w: read chunkStart=%d, expected %d", ErrProtocolViolation, chunkStart, e.currentOffset)
	}

	remaining := e.length - e.currentOffset
	if remaining < 0 {
 remaining = 0
	}
	want := int64(chunkSize)
	if want > remaining {
 want = remaining
	}

	buf := make([]byte, want)
	if want > 0 {
 n, err := e.file.Read(buf)
 if err != nil {
 return nil, fmt.Errorf("filetransfer: read %s: %w", info.Path, err)
 }
 buf = buf[:n]
 e.currentOffset += int64(n)
	}

	if e.length-e.currentOffset <= 0 {
 e.file.Close()
 delete(s.sending, info.Path)
 slog.Debug("filetransfer: send complete", "path", info.Path)
	}
	return buf, nil
}

// Cancel closes and removes the entry for path, if any. Used on connection
// close and explicit abort.
func (s *Sender) Cancel(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.sending[path]; ok {
 e.file.Close()
 delete(s.sending, path)
	}
}

// CancelAll closes and removes every in-flight entry.
func (s *Sender) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for path, e := range s.sending {
 e.file.Close()
 delete(s.sending, path)
	}
}

// Len reports the number of in-flight sends, for tests and diagnostics.
func (s *Sender) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sending)
}

// Receiver tracks inbound file transfers, one entry per path. The zero value is ready to use.
type Receiver struct {
	mu sync.Mutex
	receiving map[string]*recvEntry
}

// NewReceiver returns an empty Receiver.
func NewReceiver() *Receiver {
	return &Receiver{receiving: make(map[string]*recvEntry)}
}

// WriteChunk creates the receiver entry on first call (chunk == nil),
// returning 0 so the sender starts from the beginning; subsequent calls
// require chunkStart == currentOffset, otherwise ErrProtocolViolation is
// returned and the offset is not advanced. On reaching info.Length the
// entry is closed and removed. Returns the new currentOffset on success.
func (r *Receiver) WriteChunk(filesDir string, info Info, chunkStart int64, chunk []byte) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.receiving == nil {
 r.receiving = make(map[string]*recvEntry)
	}
	e, ok := r.receiving[info.Path]
	if !ok {
 if chunk != nil {
 return 0, fmt.Errorf("%w: first write for %s carried a non-nil chunk", ErrProtocolViolation, info.Path)
 }
 f, err := os.OpenFile(filepath.Join(filesDir, info.Path), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
 if err != nil {
 return 0, fmt.Errorf("filetransfer: create %s: %w", info.Path, err)
 }
 r.receiving[info.Path] = &recvEntry{file: f, length: info.Length}
 return 0, nil
	}

	if chunkStart != e.currentOffset {
 return 0, fmt.Errorf("%w: write chunkStart=%d, expected %d", ErrProtocolViolation, chunkStart, e.currentOffset)
	}

	if len(chunk) > 0 {
 if _, err := e.file.Write(chunk); err != nil {
 return 0, fmt.Errorf("filetransfer: write %s: %w", info.Path, err)
 }
 e.currentOffset += int64(len(chunk))
	}

	if e.currentOffset >= e.length {
 e.file.Close()
 delete(r.receiving, info.Path)
 slog.Debug("filetransfer: receive complete", "path", info.Path)
	}
	return e.currentOffset, nil
}

// Cancel closes and removes the entry for path, if any.
func (r *Receiver) Cancel(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.receiving[path]; ok {
 e.file.Close()
 delete(r.receiving, path)
	}
}

// CancelAll closes and removes every in-flight entry.
func (r *Receiver) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for path, e := range r.receiving {
 e.file.Close()
 delete(r.receiving, path)
	}
}

// Len reports the number of in-flight receives, for tests and diagnostics.
func (r *Receiver) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.receiving)
}
