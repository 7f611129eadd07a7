// Package api 是缓存服务 HTTP 接口的根包，处理器实现位于 api/handlers。
//
// 所有 /v1/cache 响应使用统一信封：
//
//	{"success": true, "data": ..., "timestamp": "..."}
//	{"success": false, "error": {"code": "CACHE_MISS", "message": "..."}, "timestamp": "..."}
//
// 指标在独立端口的 /metrics 上以 Prometheus 格式暴露。
package api
