package storage

import (
	"bytes"
	"context"
	"os"

	"adrender/internal/pkg/errors"
	"adrender/internal/ports"
)

// Provider is the storage contract used across API and worker.
type Provider = ports.StorageProvider

// UploadFile streams a local file to key.
func UploadFile(ctx context.Context, sp Provider, key, localPath, contentType string) (ports.PutObjectOutput, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return ports.PutObjectOutput{}, errors.Storage("upload", key, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return ports.PutObjectOutput{}, errors.Storage("upload", key, err)
	}

	out, err := sp.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   key,
		ContentType: contentType,
		Reader:      f,
		Size:        st.Size(),
	})
	if err != nil {
		return ports.PutObjectOutput{}, errors.Storage("upload", key, err)
	}
	return out, nil
}

// UploadBuffer writes data to key.
func UploadBuffer(ctx context.Context, sp Provider, key string, data []byte, contentType string) (ports.PutObjectOutput, error) {
	out, err := sp.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   key,
		ContentType: contentType,
		Reader:      bytes.NewReader(data),
		Size:        int64(len(data)),
	})
	if err != nil {
		return ports.PutObjectOutput{}, errors.Storage("upload", key, err)
	}
	return out, nil
}
