// Package config 提供 TierCache 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量（前缀 TIERCACHE_）的顺序叠加，
// 覆盖服务端口、Redis 连接、多级缓存（L1/L2/L3 与传播策略）、日志与遥测。
package config
