// Copyright (c) TierCache Authors.
// Licensed under the MIT License.

/*
Package handlers 提供缓存服务 HTTP API 的请求处理器。

# 核心类型

  - CacheHandler：/v1/cache 路由（读写删除、批量读取、模式失效、预热）与 /v1/admin 路由（统计、容量、操作日志）
  - HealthHandler：/health（执行依赖检查）、/healthz（存活探针）、/version
  - CacheService：处理器依赖的缓存能力，由 cache.MultiLevelCache 实现
  - Response：统一 JSON 响应结构（success + data + error + timestamp）
  - ResponseWriter：包装 http.ResponseWriter 以捕获状态码

错误统一使用 types.Error，WriteError 按 ErrorCode 映射 HTTP 状态码。
*/
package handlers
