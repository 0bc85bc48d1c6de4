// 版权所有 2026 MediRAG Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的检索结果缓存，支持连接池、健康检查与
优雅关闭。

# 概述

本包封装 go-redis 客户端，为检索管线提供跨进程的结果缓存。
Manager 负责连接生命周期管理，包括初始化、后台健康检查与关闭。
缓存不可用时上层直接回源，不影响检索正确性。

# 核心类型

  - Manager：缓存管理器，持有 Redis 客户端与连接池配置，
    提供 Get/Set/Delete 基础操作，以及 GetResults/SetResults
    对排序结果列表的序列化存取。
  - Config：缓存配置，包含地址、密码、连接池大小、结果 TTL
    与健康检查间隔等参数。

# 主要能力

  - 结果缓存：按查询指纹（ResultKey）缓存重排后的结果列表。
  - 连接池管理：通过 PoolSize 与 MinIdleConns 控制连接复用。
  - 健康检查：后台定时 Ping 检测，异常时通过 zap 日志告警。
  - 错误语义：提供 ErrCacheMiss 哨兵错误与 IsCacheMiss 判断函数。
*/
package cache
