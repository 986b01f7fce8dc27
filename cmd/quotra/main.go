package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"quotra/internal/config"
	"quotra/internal/gateway"
	"quotra/internal/logger"
	"quotra/internal/orchestrator"
	"quotra/internal/schema"
	statushttp "quotra/internal/transport/http/status"
)

func main() {
	cfgPath := os.Getenv("QUOTRA_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("loading config failed: %v", err)
	}
	logFile, err := setupLogOutput(cfg.Log.Path)
	if err != nil {
		log.Fatalf("initializing log file failed: %v", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}
	logger.SetLevel(cfg.Log.Level)
	logger.Infof("configuration loaded from %s (%d contexts)", cfgPath, len(cfg.Contexts))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfgCh := make(chan *config.Config, 1)
	go func() {
		if err := config.Watch(ctx, cfgPath, func(next *config.Config) {
			select {
			case cfgCh <- next:
			default:
			}
		}); err != nil {
			logger.Warnf("config watch unavailable: %v", err)
		}
	}()

	// The status listener binds once and survives adapter restarts: after a
	// reload it follows the rebuilt orchestrator through SetMeta. Address
	// and enable changes take effect on process restart.
	var srv *statushttp.Server
	for {
		meta, err := start(ctx, cfg)
		if err != nil {
			log.Fatalf("startup failed: %v", err)
		}
		if srv != nil {
			srv.SetMeta(meta)
		} else if cfg.HTTP.Enabled {
			srv, err = statushttp.NewServer(statushttp.ServerConfig{Addr: cfg.HTTP.Addr, Meta: meta})
			if err != nil {
				meta.Shutdown()
				log.Fatalf("status server failed: %v", err)
			}
			go func() {
				if err := srv.Start(ctx); err != nil {
					logger.Errorf("status server failed: %v", err)
				}
			}()
			logger.Infof("status server listening on %s", srv.Addr())
		}
		select {
		case <-ctx.Done():
			meta.Shutdown()
			logger.Infof("shutdown complete")
			return
		case next := <-cfgCh:
			logger.Infof("configuration changed, restarting adapters")
			meta.Shutdown()
			cfg = next
			logger.SetLevel(cfg.Log.Level)
		}
	}
}

func start(ctx context.Context, cfg *config.Config) (*orchestrator.Meta, error) {
	contexts, err := gateway.BuildContexts(cfg, logResult)
	if err != nil {
		return nil, err
	}
	meta := orchestrator.New(contexts)
	if err := meta.Run(ctx); err != nil {
		meta.Shutdown()
		return nil, err
	}
	return meta, nil
}

// logResult is the default sink: it writes every shaped result to the log.
func logResult(res schema.Result, _ any) {
	name := res.Callname
	if name == "" {
		name = res.Channel
	}
	if res.IsError() {
		logger.Warnw("result", "call", name, "trace", res.TraceID, "errors", res.Errors)
		return
	}
	logger.Infow("result", "call", name, "trace", res.TraceID, "data", res.Result)
}

func setupLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}
