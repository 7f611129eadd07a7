// 版权所有 2024 TierCache Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// Package telemetry 负责 OpenTelemetry SDK 的初始化，并把缓存统计
// 以可观测仪表的形式导出。禁用时不创建任何导出器，全局 Provider 保持 noop。
package telemetry
