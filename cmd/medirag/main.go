// =============================================================================
// MediRAG 主入口
// =============================================================================
// 文档问答管线的命令行入口：摄取、检索、问答
//
// 使用方法:
//
//	medirag query "question" [--mode hybrid] [--top-k 5]  # 检索并回答
//	medirag ingest --doc chunks.json [--title t]           # 摄取文档块
//	medirag docs                                           # 列出已摄取文档
//	medirag version                                        # 显示版本信息
// =============================================================================
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/medirag/config"
	"github.com/BaSui01/medirag/retriever"
	"github.com/BaSui01/medirag/types"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "query":
		runQuery(os.Args[2:])
	case "ingest":
		runIngest(os.Args[2:])
	case "docs":
		runDocs(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// =============================================================================
// 🔍 query 命令
// =============================================================================

func runQuery(args []string) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	mode := fs.String("mode", "hybrid", "Retrieval mode: vector, graph, hybrid")
	topK := fs.Int("top-k", 0, "Number of results to return")
	docID := fs.String("doc", "", "Restrict retrieval to one document")
	noAnswer := fs.Bool("no-answer", false, "Print ranked chunks without calling the LLM")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "query: missing question")
		os.Exit(1)
	}
	question := fs.Arg(0)

	cfg, logger := mustSetup(*configPath)
	defer logger.Sync()

	app, err := newApp(cfg, logger)
	if err != nil {
		logger.Fatal("failed to build pipeline", zap.Error(err))
	}
	defer app.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	startMetricsServer(cfg, logger)

	req := retriever.Request{
		Query: question,
		Mode:  retriever.Mode(*mode),
		TopK:  *topK,
	}
	if *docID != "" {
		req.Filters = retriever.Filters{"doc_id": *docID}
	}

	results, err := app.Orchestrator.Retrieve(ctx, req)
	if err != nil {
		logger.Fatal("retrieval failed", zap.Error(err))
	}

	if *noAnswer {
		printResults(results)
		return
	}

	answer, err := app.Agent.Answer(ctx, question, results)
	if err != nil {
		logger.Fatal("answer generation failed", zap.Error(err))
	}

	fmt.Println(answer.Text)
	for _, c := range answer.Citations {
		fmt.Printf("  [%d] doc=%s chunk=%s %s %s\n", c.Index, c.DocID, c.ChunkID, c.Chapter, c.PageLabel)
	}
}

func printResults(results []types.RankedResult) {
	for i, r := range results {
		fmt.Printf("%d. [%.4f] (%s) %s/%s\n   %s\n",
			i+1, r.RerankScore, r.Source, r.DocID, r.ChunkID, r.Text)
	}
}

// =============================================================================
// 📥 ingest 命令
// =============================================================================

// ingestFile 摄取输入格式：文档元信息 + 有序块列表。
type ingestFile struct {
	DocID      string        `json:"doc_id,omitempty"`
	Title      string        `json:"title"`
	SourcePath string        `json:"source_path,omitempty"`
	TotalPages int           `json:"total_pages,omitempty"`
	Chunks     []types.Chunk `json:"chunks"`
}

func runIngest(args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	docPath := fs.String("doc", "", "Path to chunks JSON file")
	fs.Parse(args)

	if *docPath == "" {
		fmt.Fprintln(os.Stderr, "ingest: --doc is required")
		os.Exit(1)
	}

	cfg, logger := mustSetup(*configPath)
	defer logger.Sync()

	data, err := os.ReadFile(*docPath)
	if err != nil {
		logger.Fatal("failed to read chunks file", zap.Error(err))
	}
	var input ingestFile
	if err := json.Unmarshal(data, &input); err != nil {
		logger.Fatal("failed to parse chunks file", zap.Error(err))
	}
	if len(input.Chunks) == 0 {
		logger.Fatal("chunks file contains no chunks")
	}

	app, err := newApp(cfg, logger)
	if err != nil {
		logger.Fatal("failed to build pipeline", zap.Error(err))
	}
	defer app.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	docID, err := app.Registry.Register(types.DocumentInfo{
		DocID:      input.DocID,
		Title:      input.Title,
		SourcePath: input.SourcePath,
		TotalPages: input.TotalPages,
	})
	if err != nil {
		logger.Fatal("failed to register document", zap.Error(err))
	}

	if err := app.GraphIngestor.Ingest(ctx, docID, input.Chunks); err != nil {
		logger.Fatal("graph ingestion failed", zap.Error(err))
	}
	if err := app.VectorIngestor.Ingest(ctx, docID, input.Chunks); err != nil {
		logger.Fatal("vector ingestion failed", zap.Error(err))
	}

	fmt.Printf("ingested doc_id=%s chunks=%d\n", docID, len(input.Chunks))
}

// =============================================================================
// 📚 docs 命令
// =============================================================================

func runDocs(args []string) {
	fs := flag.NewFlagSet("docs", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	cfg, logger := mustSetup(*configPath)
	defer logger.Sync()

	app, err := newApp(cfg, logger)
	if err != nil {
		logger.Fatal("failed to build pipeline", zap.Error(err))
	}
	defer app.Close()

	docs, err := app.Registry.List()
	if err != nil {
		logger.Fatal("failed to list documents", zap.Error(err))
	}
	for _, d := range docs {
		fmt.Printf("%s  %q  pages=%d  ingested=%s\n",
			d.DocID, d.Title, d.TotalPages, d.CreatedAt.Format("2006-01-02 15:04"))
	}
}

// =============================================================================
// 🔧 启动辅助
// =============================================================================

func mustSetup(configPath string) (*config.Config, *zap.Logger) {
	loader := config.NewLoader()
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	return cfg, logger
}

func startMetricsServer(cfg *config.Config, logger *zap.Logger) {
	if !cfg.Metrics.Enabled {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("metrics server started", zap.String("addr", cfg.Metrics.Addr))
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("MediRAG %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`MediRAG - hybrid retrieval over PDF documents

Usage:
  medirag <command> [options]

Commands:
  query     Retrieve and answer a question
  ingest    Ingest document chunks into the stores
  docs      List ingested documents
  version   Show version information
  help      Show this help message

Options for 'query':
  --config <path>   Path to configuration file (YAML)
  --mode <mode>     Retrieval mode: vector, graph, hybrid (default hybrid)
  --top-k <n>       Number of results to return
  --doc <doc_id>    Restrict retrieval to one document
  --no-answer       Print ranked chunks without calling the LLM

Options for 'ingest':
  --config <path>   Path to configuration file (YAML)
  --doc <path>      Path to chunks JSON file

Examples:
  medirag query "What regulates the heart rate?"
  medirag query "心率由什么调节" --mode graph --top-k 3
  medirag ingest --doc anatomy_chunks.json
  medirag docs`)
}
