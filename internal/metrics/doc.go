// 版权所有 2026 MediRAG Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的检索管线指标采集，覆盖检索、
重排、摄取与缓存四个维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离，
支持多维度 label 分组，便于 Grafana 等工具进行可视化与告警。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram 等
    Prometheus 向量指标，按管线阶段分组管理。

# 主要能力

  - 检索指标：请求总数与耗时按 mode/status 分组，各阶段候选
    数量按 stage 分组，后端失败按 backend 计数。
  - 重排指标：打分请求总数、耗时与降级回退计数。
  - 摄取指标：块写入总数与耗时，按 store（graph/vector）分组。
  - 缓存指标：命中与未命中计数，按 cache_type 分组。
*/
package metrics
