package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/tiercache/cache"
	"github.com/BaSui01/tiercache/types"
)

// maxOperationsLimit 单次查询操作日志的上限
const maxOperationsLimit = 1000

// CacheService 处理器依赖的缓存能力，由 *cache.MultiLevelCache 实现
type CacheService interface {
	GetItem(ctx context.Context, key string, opts ...cache.CallOption) (*types.CacheItem, types.Level, bool)
	Set(ctx context.Context, key string, value any, opts ...cache.CallOption) bool
	Delete(ctx context.Context, key string) bool
	Clear(ctx context.Context, levels ...types.Level) bool
	MGet(ctx context.Context, keys []string, opts ...cache.CallOption) map[string]json.RawMessage
	InvalidatePattern(ctx context.Context, pattern string) (int, error)
	Warmup(ctx context.Context, keys []string)
	Stats() types.CacheStats
	Operations(limit int) []types.CacheOperation
	Size(ctx context.Context) types.SizeInfo
}

// CacheHandler 缓存 HTTP 接口
type CacheHandler struct {
	cache  CacheService
	logger *zap.Logger
}

// NewCacheHandler 创建缓存处理器
func NewCacheHandler(c CacheService, logger *zap.Logger) *CacheHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheHandler{cache: c, logger: logger.With(zap.String("handler", "cache"))}
}

// ItemResponse GET /v1/cache/{key} 的响应数据
type ItemResponse struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	Level     types.Level     `json:"level"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
}

// KeysRequest mget 与 warmup 的请求体
type KeysRequest struct {
	Keys []string `json:"keys"`
}

// InvalidateRequest 模式失效请求体
type InvalidateRequest struct {
	Pattern string `json:"pattern"`
}

// RegisterRoutes 注册 /v1/cache 与 /v1/admin 路由。
// 统计类路由放在 /v1/admin 下，GET /v1/cache/{key} 因此可以读取任意键名。
// /v1/cache 下的字面路由只有 POST 方法，不会遮蔽 GET、PUT、DELETE 的键路由。
func (h *CacheHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/admin/stats", h.HandleStats)
	mux.HandleFunc("GET /v1/admin/size", h.HandleSize)
	mux.HandleFunc("GET /v1/admin/operations", h.HandleOperations)
	mux.HandleFunc("POST /v1/cache/mget", h.HandleMGet)
	mux.HandleFunc("POST /v1/cache/invalidate", h.HandleInvalidate)
	mux.HandleFunc("POST /v1/cache/warmup", h.HandleWarmup)
	mux.HandleFunc("DELETE /v1/cache", h.HandleClear)

	mux.HandleFunc("GET /v1/cache/{key}", h.HandleGet)
	mux.HandleFunc("PUT /v1/cache/{key}", h.HandleSet)
	mux.HandleFunc("DELETE /v1/cache/{key}", h.HandleDelete)
}

// HandleGet 读取单个键，?skip=l1,l2 跳过指定层级
func (h *CacheHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	opts, ok := h.skipOptions(w, r)
	if !ok {
		return
	}

	item, level, found := h.cache.GetItem(r.Context(), key, opts...)
	if !found {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrNotFound, "key not found", h.logger)
		return
	}

	resp := ItemResponse{
		Key:       key,
		Value:     item.Value,
		Level:     level,
		CreatedAt: item.CreatedAt,
	}
	if exp := item.ExpiresAt(); !exp.IsZero() {
		resp.ExpiresAt = &exp
	}
	WriteSuccess(w, resp)
}

// HandleSet 写入单个键，请求体为任意 JSON 值，?ttl=30s 指定过期时间
func (h *CacheHandler) HandleSet(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	opts, ok := h.skipOptions(w, r)
	if !ok {
		return
	}
	if raw := r.URL.Query().Get("ttl"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil || ttl <= 0 {
			WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "ttl must be a positive duration", h.logger)
			return
		}
		opts = append(opts, cache.WithTTL(ttl))
	}

	value, err := ReadRawJSON(w, r, h.logger)
	if err != nil {
		return
	}

	if !h.cache.Set(r.Context(), key, value, opts...) {
		WriteErrorMessage(w, http.StatusInternalServerError, types.ErrWriteFailed, "write failed on at least one level", h.logger)
		return
	}
	WriteSuccess(w, map[string]string{"key": key})
}

// HandleDelete 从所有层级删除键
func (h *CacheHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if !h.cache.Delete(r.Context(), key) {
		WriteErrorMessage(w, http.StatusInternalServerError, types.ErrDeleteFailed, "delete failed on at least one level", h.logger)
		return
	}
	WriteSuccess(w, map[string]string{"key": key})
}

// HandleClear 清空层级，?level=l1 只清空一层，缺省清空全部
func (h *CacheHandler) HandleClear(w http.ResponseWriter, r *http.Request) {
	level, ok := types.ParseLevel(r.URL.Query().Get("level"))
	if !ok {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "unknown level", h.logger)
		return
	}

	var cleared bool
	if level == types.LevelAll {
		cleared = h.cache.Clear(r.Context())
	} else {
		cleared = h.cache.Clear(r.Context(), level)
	}
	if !cleared {
		WriteErrorMessage(w, http.StatusInternalServerError, types.ErrDeleteFailed, "clear failed", h.logger)
		return
	}
	WriteSuccess(w, map[string]string{"level": string(level)})
}

// HandleMGet 批量读取，未命中的键值为 null
func (h *CacheHandler) HandleMGet(w http.ResponseWriter, r *http.Request) {
	var req KeysRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if len(req.Keys) == 0 {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "keys is required", h.logger)
		return
	}
	WriteSuccess(w, h.cache.MGet(r.Context(), req.Keys))
}

// HandleInvalidate 删除规范化键匹配正则的条目
func (h *CacheHandler) HandleInvalidate(w http.ResponseWriter, r *http.Request) {
	var req InvalidateRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Pattern == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidPattern, "pattern is required", h.logger)
		return
	}

	n, err := h.cache.InvalidatePattern(r.Context(), req.Pattern)
	if err != nil {
		WriteError(w, types.NewError(types.ErrInvalidPattern, err.Error()).WithCause(err), h.logger)
		return
	}
	WriteSuccess(w, map[string]int{"invalidated": n})
}

// HandleWarmup 预热键
func (h *CacheHandler) HandleWarmup(w http.ResponseWriter, r *http.Request) {
	var req KeysRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	h.cache.Warmup(r.Context(), req.Keys)
	WriteSuccess(w, map[string]int{"keys": len(req.Keys)})
}

// HandleStats 返回统计快照
func (h *CacheHandler) HandleStats(w http.ResponseWriter, _ *http.Request) {
	WriteSuccess(w, h.cache.Stats())
}

// HandleSize 返回各层条目数
func (h *CacheHandler) HandleSize(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.cache.Size(r.Context()))
}

// HandleOperations 返回最近的操作日志，?limit=50
func (h *CacheHandler) HandleOperations(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "limit must be a positive integer", h.logger)
			return
		}
		limit = min(n, maxOperationsLimit)
	}
	WriteSuccess(w, h.cache.Operations(limit))
}

// skipOptions 解析 ?skip=l1,l2；解析失败时已写出 400
func (h *CacheHandler) skipOptions(w http.ResponseWriter, r *http.Request) ([]cache.CallOption, bool) {
	raw := r.URL.Query().Get("skip")
	if raw == "" {
		return nil, true
	}

	var levels []types.Level
	for _, part := range strings.Split(raw, ",") {
		level, ok := types.ParseLevel(strings.TrimSpace(part))
		if !ok || level == types.LevelAll {
			WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "unknown level in skip: "+part, h.logger)
			return nil, false
		}
		levels = append(levels, level)
	}
	return []cache.CallOption{cache.Skip(levels...)}, true
}
