package rag

import (
	"context"
	"errors"
	"fmt"
)

// SaveIndex serializes ix and writes it to store under key.
func SaveIndex(ctx context.Context, store BlobStore, key string, ix *VectorIndex) error {
	data, err := ix.MarshalBinary()
	if err != nil {
		return fmt.Errorf("rag: encode index %q: %w", key, err)
	}
	if err := store.Put(ctx, key, data); err != nil {
		return fmt.Errorf("rag: save index %q: %w", key, err)
	}
	return nil
}

// LoadIndex reads and decodes the index stored under key. A missing key is a
// KindIndexNotFound error; an undecodable blob is KindIndexCorrupt.
func LoadIndex(ctx context.Context, store BlobStore, key string) (*VectorIndex, error) {
	data, err := store.Get(ctx, key)
	if errors.Is(err, ErrBlobNotFound) {
		return nil, NewError(KindIndexNotFound, fmt.Sprintf("no index stored at %q", key), err)
	}
	if err != nil {
		return nil, fmt.Errorf("rag: load index %q: %w", key, err)
	}
	ix, err := UnmarshalIndex(data)
	if err != nil {
		return nil, fmt.Errorf("rag: load index %q: %w", key, err)
	}
	return ix, nil
}
