// Package codec 负责 CacheItem 在 L2/L3 上的字节表示。
//
// 负载是 JSON 编码的 CacheItem。启用压缩时，使用 deflate 压缩并在前面加一个
// 标记字节；压缩失败或压缩后不更小时退回原始 JSON。解码时根据首字节自动识别，
// 因此同一个存储里可以混合存在压缩与未压缩的条目。
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/flate"

	"github.com/BaSui01/tiercache/internal/pool"
	"github.com/BaSui01/tiercache/types"
)

// markerDeflate 标记 deflate 压缩负载；JSON 对象不可能以该字节开头
const markerDeflate byte = 0x01

// Codec 条目编解码器，可并发使用
type Codec struct {
	compress bool
	level    int
	writers  sync.Pool
}

// New 创建编解码器
func New(compress bool) *Codec {
	return NewWithLevel(compress, flate.DefaultCompression)
}

// NewWithLevel 创建指定压缩级别的编解码器
func NewWithLevel(compress bool, level int) *Codec {
	return &Codec{compress: compress, level: level}
}

// Compressed 返回是否启用压缩
func (c *Codec) Compressed() bool {
	return c.compress
}

// Encode 序列化条目
func (c *Codec) Encode(item *types.CacheItem) ([]byte, error) {
	raw, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("marshal cache item: %w", err)
	}
	if !c.compress {
		return raw, nil
	}

	packed, err := c.deflate(raw)
	if err != nil || len(packed) >= len(raw) {
		return raw, nil
	}
	return packed, nil
}

// Decode 反序列化条目，无法解析时返回包装了 types.ErrCorruptItem 的错误
func (c *Codec) Decode(data []byte) (*types.CacheItem, error) {
	payload := data
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", types.ErrCorruptItem)
	}

	if payload[0] == markerDeflate {
		buf := pool.ByteBufferPool.Get()
		defer pool.ByteBufferPool.Put(buf)

		if err := inflate(buf, payload[1:]); err != nil {
			return nil, fmt.Errorf("%w: inflate: %v", types.ErrCorruptItem, err)
		}
		// json.Unmarshal 会复制 RawMessage，缓冲区可以安全归还
		payload = buf.Bytes()
	}

	var item types.CacheItem
	if err := json.Unmarshal(payload, &item); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrCorruptItem, err)
	}
	if item.Key == "" {
		return nil, fmt.Errorf("%w: missing key", types.ErrCorruptItem)
	}
	return &item, nil
}

func (c *Codec) deflate(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(raw)/2 + 1)
	buf.WriteByte(markerDeflate)

	w, err := c.writer(&buf)
	if err != nil {
		return nil, err
	}
	defer c.writers.Put(w)

	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Codec) writer(dst io.Writer) (*flate.Writer, error) {
	if w, ok := c.writers.Get().(*flate.Writer); ok {
		w.Reset(dst)
		return w, nil
	}
	return flate.NewWriter(dst, c.level)
}

func inflate(dst *bytes.Buffer, data []byte) error {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	_, err := io.Copy(dst, r)
	return err
}
