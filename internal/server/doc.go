// 版权所有 2024 TierCache Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理 HTTP 服务器的生命周期：非阻塞启动、优雅关闭与信号监听。

缓存服务同时运行 API 与指标两个监听端口，每个端口对应一个 Manager，
通过 Name 区分日志来源。Wait 在收到 SIGINT/SIGTERM、任一服务器异常退出
或上下文取消时返回，由调用方决定后续的关闭顺序。
*/
package server
