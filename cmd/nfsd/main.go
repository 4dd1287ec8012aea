package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/nfsd3/nfsd3/internal/config"
	"github.com/nfsd3/nfsd3/internal/content"
	"github.com/nfsd3/nfsd3/internal/content/fsstore"
	"github.com/nfsd3/nfsd3/internal/content/memstore"
	"github.com/nfsd3/nfsd3/internal/content/s3store"
	"github.com/nfsd3/nfsd3/internal/dispatch"
	"github.com/nfsd3/nfsd3/internal/fsal"
	"github.com/nfsd3/nfsd3/internal/fsal/badger"
	"github.com/nfsd3/nfsd3/internal/fsal/memory"
	"github.com/nfsd3/nfsd3/internal/logger"
	"github.com/nfsd3/nfsd3/internal/mount"
	"github.com/nfsd3/nfsd3/internal/nfs"
	"github.com/nfsd3/nfsd3/internal/portmap"
	"github.com/nfsd3/nfsd3/internal/rpc"
	"github.com/nfsd3/nfsd3/internal/server"
)

func buildContentStore(ctx context.Context, cfg config.ContentConfig) (content.Store, error) {
	switch cfg.Type {
	case "fs":
		return fsstore.New(cfg.FS.Dir)
	case "s3":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3.Region))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		client := s3.NewFromConfig(awsCfg)
		return s3store.New(client, cfg.S3.Bucket), nil
	default:
		return memstore.New(), nil
	}
}

func exportsFrom(cfg []config.ExportConfig) []fsal.Export {
	out := make([]fsal.Export, len(cfg))
	for i, e := range cfg {
		out[i] = fsal.Export{Path: e.Path, ReadOnly: e.ReadOnly}
	}
	return out
}

func buildBackend(ctx context.Context, cfg *config.Config) (fsal.Backend, error) {
	exports := exportsFrom(cfg.Exports)

	switch cfg.Backend.Type {
	case "badger":
		store, err := buildContentStore(ctx, cfg.Backend.Content)
		if err != nil {
			return nil, fmt.Errorf("build content store: %w", err)
		}
		b, err := badger.Open(cfg.Backend.Badger.Dir, store, exports)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return memory.New(exports), nil
	}
}

func main() {
	configPath := flag.String("config", "", "path to the server's YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nfsd: %v\n", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := buildBackend(ctx, cfg)
	if err != nil {
		logger.Error("nfsd: build backend: %v", err)
		os.Exit(1)
	}

	pm := portmap.NewHandler([]portmap.Mapping{
		{Program: rpc.ProgramPortmap, Version: 2, Proto: portmap.ProtoTCP, Port: 111},
		{Program: rpc.ProgramMount, Version: 3, Proto: portmap.ProtoTCP, Port: 2049},
		{Program: rpc.ProgramNFS, Version: 3, Proto: portmap.ProtoTCP, Port: 2049},
	})
	mt := mount.NewHandler(backend, mount.NewTable())
	nf := nfs.NewHandler(backend)
	router := dispatch.NewRouter(pm, mt, nf)

	nfsSrv := server.New(cfg.Server.ListenAddr, router, server.Config{
		MaxRecordSize:         cfg.Server.MaxRecordSize,
		MaxConnections:        cfg.Server.MaxConnections,
		MaxOutstandingPerConn: cfg.Server.MaxOutstandingPerConn,
		IdleTimeout:           cfg.Server.IdleTimeout,
	})
	portmapSrv := server.New(cfg.Server.PortmapAddr, router, server.Config{
		MaxRecordSize: cfg.Server.MaxRecordSize,
	})

	serveErr := make(chan error, 2)
	go func() { serveErr <- nfsSrv.Serve(ctx) }()
	go func() { serveErr <- portmapSrv.Serve(ctx) }()

	logger.Info("nfsd: NFS/MOUNT listening on %s, PORTMAP on %s", cfg.Server.ListenAddr, cfg.Server.PortmapAddr)

	select {
	case <-ctx.Done():
		logger.Info("nfsd: shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			logger.Error("nfsd: %v", err)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := nfsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("nfsd: NFS/MOUNT shutdown: %v", err)
	}
	if err := portmapSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("nfsd: PORTMAP shutdown: %v", err)
	}
	logger.Info("nfsd: stopped")
}
