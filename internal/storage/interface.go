package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// Backend is a place backup files are copied to.
type Backend interface {
	Write(ctx context.Context, path string, reader io.Reader) error
	List(ctx context.Context, prefix string) ([]FileInfo, error)
}

type FileInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
}

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Create(backend, path string, s3Config *S3Config) (Backend, error) {
	switch backend {
	case "local":
		return NewLocalStorage(path)
	case "s3":
		if s3Config == nil {
			return nil, ErrS3ConfigRequired
		}
		return NewS3Storage(*s3Config)
	default:
		return nil, ErrUnknownBackend
	}
}

type S3Config struct {
	Bucket    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

var (
	ErrS3ConfigRequired = errors.New("s3 config required")
	ErrUnknownBackend   = errors.New("unknown backend")
)
