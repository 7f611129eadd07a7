// Package disk 实现 L3 持久缓存：每个条目一个文件，按规范化键的前两位分片。
//
// 布局：<basePath>/<key[:2]>/<key>.cache。写入先落临时文件再 rename，
// 读到一半的文件不会被其他读者看到。读取时遇到无法解析的文件只当作未命中，
// 由 Sweep 负责删除。
package disk

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/tiercache/config"
	"github.com/BaSui01/tiercache/internal/codec"
	"github.com/BaSui01/tiercache/types"
)

const (
	fileExt    = ".cache"
	tempMarker = ".tmp-"
	shardWidth = 2
)

// Option 配置 Store
type Option func(*Store)

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock 设置时间源
func WithClock(clock types.Clock) Option {
	return func(s *Store) {
		if clock != nil {
			s.now = clock
		}
	}
}

// Store L3 缓存
type Store struct {
	basePath    string
	maxFileSize int64
	codec       *codec.Codec
	logger      *zap.Logger
	now         types.Clock
}

// SweepResult 一次清理的结果
type SweepResult struct {
	Scanned  int           `json:"scanned"`
	Expired  int           `json:"expired"`
	Corrupt  int           `json:"corrupt"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// Removed 返回删除的文件数
func (r SweepResult) Removed() int {
	return r.Expired + r.Corrupt
}

// New 创建 L3 缓存。目录在首次写入时按需创建。
func New(cfg config.L3Config, opts ...Option) (*Store, error) {
	if cfg.BasePath == "" {
		return nil, errors.New("l3 base path is required")
	}
	s := &Store{
		basePath:    filepath.Clean(cfg.BasePath),
		maxFileSize: cfg.MaxFileSize,
		codec:       codec.New(cfg.CompressionEnabled),
		logger:      zap.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "l3"))
	return s, nil
}

// Level 返回层级标识
func (s *Store) Level() types.Level { return types.LevelL3 }

// BasePath 返回根目录
func (s *Store) BasePath() string { return s.basePath }

// Path 返回键对应的文件路径
func (s *Store) Path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("l3: invalid key %q", key)
	}
	shard := key
	if len(shard) > shardWidth {
		shard = shard[:shardWidth]
	}
	return filepath.Join(s.basePath, shard, key+fileExt), nil
}

// Get 读取条目。文件不存在或无法解析均视为未命中；过期文件顺带删除。
func (s *Store) Get(ctx context.Context, key string) (*types.CacheItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.Path(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, types.ErrCacheMiss
	}
	if err != nil {
		s.logger.Error("cache get failed", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("l3 get %s: %w", key, err)
	}

	item, err := s.codec.Decode(data)
	if err != nil {
		s.logger.Warn("unparsable cache file", zap.String("path", path), zap.Error(err))
		return nil, types.ErrCacheMiss
	}

	now := s.now()
	if item.Expired(now) {
		if err := removeFile(path); err != nil {
			s.logger.Debug("remove expired file failed", zap.String("path", path), zap.Error(err))
		}
		return nil, types.ErrCacheMiss
	}

	item.Touch(now)
	return item, nil
}

// Set 写入条目，超过 maxFileSize 时返回 types.ErrItemTooLarge
func (s *Store) Set(ctx context.Context, key string, item *types.CacheItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("l3 set %s: nil item", key)
	}
	path, err := s.Path(key)
	if err != nil {
		return err
	}

	data, err := s.codec.Encode(item)
	if err != nil {
		return fmt.Errorf("l3 set %s: %w", key, err)
	}
	if s.maxFileSize > 0 && int64(len(data)) > s.maxFileSize {
		return fmt.Errorf("l3 set %s: %d bytes exceeds %d: %w", key, len(data), s.maxFileSize, types.ErrItemTooLarge)
	}

	if err := writeFileAtomic(path, data); err != nil {
		s.logger.Error("cache set failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("l3 set %s: %w", key, err)
	}
	return nil
}

// Delete 删除条目，文件不存在也视为成功
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.Path(key)
	if err != nil {
		return err
	}
	if err := removeFile(path); err != nil {
		s.logger.Error("cache delete failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("l3 delete %s: %w", key, err)
	}
	return nil
}

// Clear 删除所有分片目录，保留根目录本身
func (s *Store) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := os.ReadDir(s.basePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("l3 clear: %w", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(s.basePath, e.Name())); err != nil {
			return fmt.Errorf("l3 clear: %w", err)
		}
	}
	return nil
}

// Len 返回缓存文件数量，根目录不存在时为 0
func (s *Store) Len(ctx context.Context) (int64, error) {
	var n int64
	err := s.walk(ctx, func(string, fs.DirEntry) error {
		n++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("l3 len: %w", err)
	}
	return n, nil
}

// DiskUsage 返回缓存文件占用的字节数
func (s *Store) DiskUsage(ctx context.Context) (int64, error) {
	var total int64
	err := s.walk(ctx, func(_ string, d fs.DirEntry) error {
		info, err := d.Info()
		if err != nil {
			return nil
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("l3 disk usage: %w", err)
	}
	return total, nil
}

// Sweep 遍历目录，删除过期或无法解析的文件，以及中断写入遗留的临时文件。
// 根目录不存在不算错误。
func (s *Store) Sweep(ctx context.Context) (SweepResult, error) {
	start := time.Now()
	var res SweepResult
	now := s.now()

	err := filepath.WalkDir(s.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			res.Failed++
			s.logger.Debug("sweep walk error", zap.String("path", path), zap.Error(err))
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		name := d.Name()
		if strings.Contains(name, tempMarker) {
			if s.staleTemp(d, now) {
				_ = removeFile(path)
			}
			return nil
		}
		if !strings.HasSuffix(name, fileExt) {
			return nil
		}

		res.Scanned++
		data, err := os.ReadFile(path)
		if err != nil {
			res.Failed++
			return nil
		}

		item, err := s.codec.Decode(data)
		switch {
		case err != nil:
			if rmErr := removeFile(path); rmErr != nil {
				res.Failed++
				return nil
			}
			res.Corrupt++
		case item.Expired(now):
			if rmErr := removeFile(path); rmErr != nil {
				res.Failed++
				return nil
			}
			res.Expired++
		}
		return nil
	})

	res.Duration = time.Since(start)
	if err != nil {
		return res, fmt.Errorf("l3 sweep: %w", err)
	}

	if res.Removed() > 0 || res.Failed > 0 {
		s.logger.Info("l3 sweep finished",
			zap.Int("scanned", res.Scanned),
			zap.Int("expired", res.Expired),
			zap.Int("corrupt", res.Corrupt),
			zap.Int("failed", res.Failed),
			zap.Duration("duration", res.Duration),
		)
	}
	return res, nil
}

// staleTemp 判断临时文件是否早已被放弃
func (s *Store) staleTemp(d fs.DirEntry, now time.Time) bool {
	info, err := d.Info()
	if err != nil {
		return false
	}
	return now.Sub(info.ModTime()) > time.Hour
}

// walk 遍历所有缓存文件
func (s *Store) walk(ctx context.Context, fn func(path string, d fs.DirEntry) error) error {
	err := filepath.WalkDir(s.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), fileExt) || strings.Contains(d.Name(), tempMarker) {
			return nil
		}
		return fn(path, d)
	})
	return err
}

// writeFileAtomic 先写同目录临时文件再 rename
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+tempMarker+"*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func removeFile(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
