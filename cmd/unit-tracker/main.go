package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"unit-tracker/internal/config"
	"unit-tracker/internal/logger"
	"unit-tracker/internal/service"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (overrides TRACKER_CONFIG)")
	exportFormat := flag.String("export", "", "export devices once and exit: csv, xlsx or pdf")
	flag.Parse()

	if *configPath != "" {
		_ = os.Setenv("TRACKER_CONFIG", *configPath)
	}

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	log, level, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "unit-tracker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	svc, err := service.NewTrackerService(cfg, log)
	if err != nil {
		log.Fatal("Failed to create tracker service", zap.Error(err))
	}
	svc.SetLogLevel(level)

	if *exportFormat != "" {
		code := runExport(svc, *exportFormat, log)
		_ = log.Sync()
		os.Exit(code)
	}

	log.Info("Starting unit-tracker",
		zap.String("api_base_url", cfg.API.BaseURL),
		zap.String("push_transport", cfg.Push.Transport),
	)

	// 创建上下文
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 监听系统信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- svc.Start(ctx)
	}()

	// 等待信号或错误
	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
		<-errChan
	case err := <-errChan:
		if err != nil {
			log.Error("Service error", zap.Error(err))
		}
		cancel()
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := svc.Stop(stopCtx); err != nil {
		log.Error("Error stopping service", zap.Error(err))
	}
	log.Info("Service stopped")
}

func runExport(svc *service.TrackerService, format string, log *zap.Logger) int {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	defer func() {
		if err := svc.Stop(ctx); err != nil {
			log.Error("Error stopping service", zap.Error(err))
		}
	}()

	path, err := svc.ExportOnce(ctx, format)
	if err != nil {
		log.Error("Export failed", zap.String("format", format), zap.Error(err))
		return 1
	}
	log.Info("Export written", zap.String("format", format), zap.String("path", path))
	return 0
}
