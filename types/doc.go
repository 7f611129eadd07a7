// Copyright (c) TierCache Authors.
// Licensed under the MIT License.

/*
Package types 提供 tiercache 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 cache、各层级适配器、
api 与 cmd 提供统一的类型契约，以避免循环依赖。

# 核心类型

  - CacheItem / ItemMetadata：三个层级共享的存储单元
  - Level：层级标识（l1 / l2 / l3 / all）
  - CacheStats / LevelStats：统计快照，命中率无数据时为 0
  - CacheOperation：操作日志条目
  - SizeInfo：各层条目数
  - Error / ErrorCode：HTTP 层使用的结构化错误

# 哨兵错误

ErrCacheMiss、ErrItemTooLarge、ErrCorruptItem 与 ErrClosed 由层级适配器
返回，协调器负责把它们转换为布尔结果，不会传播给调用方。
*/
package types
