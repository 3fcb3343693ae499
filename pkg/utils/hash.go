package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"os"
)

// HashingWriter forwards writes to w while keeping a running SHA-256 and byte count
type HashingWriter struct {
	w       io.Writer
	h       hash.Hash
	written int64
}

// NewHashingWriter wraps w
func NewHashingWriter(w io.Writer) *HashingWriter {
	return &HashingWriter{w: w, h: sha256.New()}
}

func (hw *HashingWriter) Write(p []byte) (int, error) {
	n, err := hw.w.Write(p)
	hw.h.Write(p[:n])
	hw.written += int64(n)
	return n, err
}

// Written returns the number of bytes successfully written so far
func (hw *HashingWriter) Written() int64 { return hw.written }

// Sum returns the hex SHA-256 of everything written so far
func (hw *HashingWriter) Sum() string { return hex.EncodeToString(hw.h.Sum(nil)) }

// CalculateFileSHA256 computes the SHA-256 hash of a file's content.
func CalculateFileSHA256(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hw := NewHashingWriter(io.Discard)
	if _, err := io.Copy(hw, file); err != nil {
		return "", err
	}
	return hw.Sum(), nil
}
