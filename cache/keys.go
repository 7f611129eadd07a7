package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// NormalizeKey 把原始键映射为定长标识：SHA-256 前 16 字节的十六进制（32 个字符）。
// 三个层级使用同一个规范化键，L3 还用它的前两位选择分片目录。
func NormalizeKey(raw string) string {
	hash := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(hash[:16]) // 使用前 16 字节
}

// ShardOf 返回规范化键所在的 L3 分片名
func ShardOf(normalized string) string {
	if len(normalized) < 2 {
		return normalized
	}
	return normalized[:2]
}
