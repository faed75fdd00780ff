package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cppla/sharedrop/blob"
	"github.com/cppla/sharedrop/config"
	"github.com/cppla/sharedrop/routes"
	"github.com/cppla/sharedrop/share"
	"github.com/cppla/sharedrop/store"
	"github.com/cppla/sharedrop/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer utils.Sync()

	roomStore, sweeper := newRoomStore(cfg)
	defer roomStore.Close()

	blobs := newBlobStore(cfg)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := share.NewMetrics(reg)

	svc := share.NewService(share.Options{
		Store:         roomStore,
		Blobs:         blobs,
		Hub:           share.NewHub(utils.Logger.Named("hub"), metrics),
		FileTTL:       cfg.FileTTL(),
		MaxUploadSize: cfg.MaxUploadSize(),
		Logger:        utils.Logger.Named("share"),
		Metrics:       metrics,
	})
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "sharedrop", Name: "rooms_active",
		Help: "Rooms with at least one joined peer.",
	}, func() float64 {
		rooms, _ := svc.Hub().Counts()
		return float64(rooms)
	}))

	r := routes.SetupRouter(cfg, svc, reg)
	srv := utils.NewGraceServer(":"+cfg.AppPort, r)

	ctx, cancel := context.WithCancel(context.Background())
	srv.OnShutdown = func() {
		cancel()
		svc.Shutdown()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
		if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
			return srv.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
		}
		return srv.ListenAndServe()
	})
	if sweeper != nil {
		g.Go(func() error {
			sweeper.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		// a failed listener cancels gctx without going through OnShutdown
		<-gctx.Done()
		srv.Stop()
		return nil
	})

	if err := g.Wait(); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
	utils.Sugar.Info("server stopped")
}

func newRoomStore(cfg config.AppConfig) (store.RoomStore, store.Sweeper) {
	log := utils.Logger.Named("store")
	if cfg.ShareStoreBackend == "redis" {
		client, err := utils.NewRedisClient(cfg)
		if err != nil {
			// reads fail open, so the server still comes up
			log.Warn("redis ping failed", zap.Error(err))
		}
		rs := store.NewRedisStore(client, store.RedisOptions{
			Prefix:  cfg.ShareRedisPrefix,
			FileTTL: cfg.FileTTL(),
			RoomTTL: cfg.RoomTTL(),
		}, log)
		log.Info("room store: redis", zap.String("addr", client.Options().Addr))
		return rs, nil
	}
	ms := store.NewMemoryStore(store.MemoryOptions{
		FileTTL:       cfg.FileTTL(),
		IdleGrace:     cfg.IdleGrace(),
		SweepInterval: cfg.SweepInterval(),
	}, log)
	log.Info("room store: memory")
	return ms, ms
}

func newBlobStore(cfg config.AppConfig) blob.Store {
	switch cfg.BlobProvider {
	case "cloudinary":
		cs, err := blob.NewCloudinaryStore(blob.CloudinaryConfig{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.BlobFolder,
		})
		if err != nil {
			utils.Sugar.Fatalf("cloudinary blob store: %v", err)
		}
		return cs
	case "s3":
		ss, err := blob.NewS3Store(blob.S3Config{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			PublicBaseURL:   cfg.S3PublicBaseURL,
			Folder:          cfg.BlobFolder,
			UsePathStyle:    cfg.S3UsePathStyle,
		})
		if err != nil {
			utils.Sugar.Fatalf("s3 blob store: %v", err)
		}
		return ss
	default:
		utils.Sugar.Warn("no blob provider configured; upload credentials are disabled")
		return blob.Disabled{}
	}
}
