package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// Filesystem stores objects under a directory root, one zstd-compressed file
// per digest, sharded by the first two digest characters. Writes go through a
// temp file and rename, so readers never see partial objects.
type Filesystem struct {
	root    string
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewFilesystem creates a filesystem store rooted at dir (default
// "./blobdata").
func NewFilesystem(dir string) (*Filesystem, error) {
	if dir == "" {
		dir = "./blobdata"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blob: create root: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &Filesystem{root: dir, encoder: enc, decoder: dec}, nil
}

func (f *Filesystem) Driver() Driver { return DriverFilesystem }

func (f *Filesystem) path(digest string) string {
	return filepath.Join(f.root, digest[:2], digest+".zst")
}

func (f *Filesystem) Put(_ context.Context, data []byte) (string, error) {
	digest := Digest(data)
	path := f.path(digest)
	if _, err := os.Stat(path); err == nil {
		return digest, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("blob: create shard: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+digest+".*")
	if err != nil {
		return "", fmt.Errorf("blob: create temp: %w", err)
	}
	compressed := f.encoder.EncodeAll(data, nil)
	if _, err := tmp.Write(compressed); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("blob: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("blob: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("blob: rename: %w", err)
	}
	return digest, nil
}

func (f *Filesystem) Get(_ context.Context, digest string) ([]byte, error) {
	if !ValidDigest(digest) {
		return nil, ErrBadDigest
	}
	compressed, err := os.ReadFile(f.path(digest))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("blob: read: %w", err)
	}
	data, err := f.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("blob: decompress %s: %w", digest, err)
	}
	return data, nil
}

func (f *Filesystem) Exists(_ context.Context, digest string) (bool, error) {
	if !ValidDigest(digest) {
		return false, ErrBadDigest
	}
	_, err := os.Stat(f.path(digest))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}
