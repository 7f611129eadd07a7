// 版权所有 2024 TierCache Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集，覆盖 HTTP 接口与多级缓存两个维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离。
Collector 实现了 cache.Recorder，可直接传给 cache.WithRecorder。

# 主要能力

  - HTTP 指标：请求总数、请求耗时、请求/响应体大小，
    按 method/path/status 分组，状态码归类为 2xx/3xx/4xx/5xx。
  - 缓存指标：按层级统计命中、未命中、容量淘汰、后台传播失败与条目数；
    按 operation/level/status 统计操作次数与耗时。
*/
package metrics
