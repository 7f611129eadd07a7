// Copyright (c) TierCache Authors.
// Licensed under the MIT License.

/*
Package main 提供 TierCache 缓存服务的可执行入口。

子命令 serve 读取 YAML 配置与 TIERCACHE_ 前缀的环境变量，创建多级缓存，
在 HTTP 端口提供 /v1/cache 接口，在独立端口暴露 Prometheus /metrics。
收到 SIGINT/SIGTERM 后依次关闭 HTTP 服务器、缓存与遥测。

中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、
MetricsMiddleware、RequestLogger、RateLimiter（基于 IP，可关闭）。
*/
package main
