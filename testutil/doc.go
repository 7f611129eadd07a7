// 版权所有 2024 TierCache Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package testutil 提供缓存各包测试共享的工具。

  - FakeClock：可手动推进的时间源，注入各层级以测试 TTL 与过期清理
  - NewRedis：基于 miniredis 的 Redis 客户端，无需外部服务
  - TestContext / CancelledContext：自动清理的上下文
  - WaitForChannel：带超时地等待后台事件，例如传播失败通知
*/
package testutil
