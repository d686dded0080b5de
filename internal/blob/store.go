package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
)

// Config selects and parametrizes the object-store backend.
type Config struct {
	Provider        string // "aliyun" | "local"
	Endpoint        string
	Bucket          string
	BasePrefix      string
	AccessKeyID     string
	AccessKeySecret string
	LocalDir        string
}

// ObjectStore persists uploaded images and archived report documents.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, body []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// JoinKey joins a base prefix and an object key with single slashes.
func JoinKey(basePrefix, key string) string {
	basePrefix = strings.Trim(strings.TrimSpace(basePrefix), "/")
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if basePrefix == "" {
		return key
	}
	if key == "" {
		return basePrefix
	}
	return basePrefix + "/" + key
}

// New constructs the configured backend.
func New(cfg Config) (ObjectStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "local":
		if strings.TrimSpace(cfg.LocalDir) == "" {
			return nil, errors.New("MAINAI_OSS_LOCAL_DIR is required when MAINAI_OSS_PROVIDER=local")
		}
		return localStore{root: cfg.LocalDir, basePrefix: cfg.BasePrefix}, nil
	case "aliyun":
		if cfg.Endpoint == "" || cfg.AccessKeyID == "" || cfg.AccessKeySecret == "" || cfg.Bucket == "" {
			return nil, errors.New("missing object store config for aliyun provider")
		}
		client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
		if err != nil {
			return nil, err
		}
		bucket, err := client.Bucket(cfg.Bucket)
		if err != nil {
			return nil, err
		}
		return aliyunStore{bucket: bucket, basePrefix: cfg.BasePrefix}, nil
	default:
		return nil, errors.New("unsupported object store provider (set MAINAI_OSS_PROVIDER=aliyun|local)")
	}
}

type localStore struct {
	root       string
	basePrefix string
}

func (s localStore) Put(ctx context.Context, key, contentType string, body []byte) error {
	_ = contentType
	p := filepath.Join(s.root, filepath.FromSlash(JoinKey(s.basePrefix, key)))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	// Best-effort atomic write.
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}

func (s localStore) Get(ctx context.Context, key string) ([]byte, error) {
	_ = ctx
	p := filepath.Join(s.root, filepath.FromSlash(JoinKey(s.basePrefix, key)))
	return os.ReadFile(p)
}

func (s localStore) Exists(ctx context.Context, key string) (bool, error) {
	_ = ctx
	p := filepath.Join(s.root, filepath.FromSlash(JoinKey(s.basePrefix, key)))
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

type aliyunStore struct {
	bucket     *oss.Bucket
	basePrefix string
}

func (s aliyunStore) Put(ctx context.Context, key, contentType string, body []byte) error {
	opts := []oss.Option{oss.WithContext(ctx)}
	if contentType != "" {
		opts = append(opts, oss.ContentType(contentType))
	}
	return s.bucket.PutObject(JoinKey(s.basePrefix, key), bytes.NewReader(body), opts...)
}

func (s aliyunStore) Get(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.bucket.GetObject(JoinKey(s.basePrefix, key), oss.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (s aliyunStore) Exists(ctx context.Context, key string) (bool, error) {
	return s.bucket.IsObjectExist(JoinKey(s.basePrefix, key), oss.WithContext(ctx))
}
