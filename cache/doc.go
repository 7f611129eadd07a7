// 版权所有 2024 TierCache Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供三级缓存协调器 MultiLevelCache：L1 进程内存、L2 Redis、L3 本地磁盘，
对调用方呈现为一个统一的缓存。

# 概述

所有键先经 NormalizeKey 规范化为 32 位十六进制摘要，三个层级使用同一个键。
读取严格按 L1 → L2 → L3 顺序进行，下层命中且启用 write-back 时回填上层。
写入按配置选择 write-through（同步写入所有层级）或 write-back（同步写第一层，
其余层级由后台工作池传播，失败通过 Errors 通道上报）。

# 核心类型

  - MultiLevelCache：协调器，实现 Get/Set/Delete/Clear/MGet/MSet/
    InvalidatePattern/Warmup/Stats/Operations/Size/Close。
  - Tier：单个层级的接口，memory、redistier、disk 三个子包分别实现。
  - OperationLog：定长环形操作日志。
  - Recorder：指标钩子，由 internal/metrics.Collector 实现。

# 主要能力

  - 泛型读写：Get[T]、Set[T]、MGet[T]、GetOrLoad[T]。
  - Read-through：GetOrLoad 在全部未命中时调用加载函数，同键并发加载只执行一次。
  - 统计：按层命中/未命中/命中率，无数据时命中率为 0。
  - 清理：启用 L3 时定时清扫过期与损坏文件，并裁剪超过保留期的操作日志。
  - 可观测性：每个公开操作创建 OpenTelemetry span。

L3 没有键索引，InvalidatePattern 只作用于 L1 与 L2。
*/
package cache
