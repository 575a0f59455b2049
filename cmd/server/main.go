package main

import (
	"context"
	"flag"
	"time"

	"github.com/labstack/gommon/log"

	"buildingmap/internal/api"
	"buildingmap/internal/config"
	"buildingmap/internal/engine"
	"buildingmap/internal/source"
)

func main() {
	var (
		configFile string
		sourceURL  string
		addr       string
	)
	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&sourceURL, "source", "", "Payload URL: http(s)://, s3://bucket/key or a local path")
	flag.StringVar(&addr, "addr", "", "HTTP listen address")
	flag.Parse()

	cfg, err := loadConfig(configFile, sourceURL, addr)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	// 1. Resolve the byte source
	src, err := source.New(ctx, cfg.Source.URL, source.Options{
		CacheDir: cfg.Source.CacheDir,
		S3: source.S3Options{
			Region:       cfg.Source.S3.Region,
			Endpoint:     cfg.Source.S3.Endpoint,
			UsePathStyle: cfg.Source.S3.UsePathStyle,
			Anonymous:    cfg.Source.S3.Anonymous,
		},
	})
	if err != nil {
		log.Fatalf("Failed to create source: %v", err)
	}

	policy, err := engine.ParseTextPolicy(cfg.Derive.TextPolicy)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// 2. Loader starts Unloaded; the API answers 503 until the dataset is published
	loader := engine.NewLoader(engine.Pipeline{
		Source:  src,
		Decoder: engine.NewDecoder(engine.WithMaxDecompressed(cfg.MaxDecompressedBytes())),
		Derive: engine.DeriveOptions{
			NumericField:     cfg.Derive.NumericField,
			CategoricalField: cfg.Derive.CategoricalField,
			ExtrusionScale:   cfg.Derive.ExtrusionScale,
			TextPolicy:       policy,
		},
		GeometryField: cfg.Derive.GeometryField,
		StrictBounds:  cfg.Render.StrictBounds,
	})

	e := api.NewEcho(cfg.HTTP.RateLimit)
	e.Logger.SetLevel(log.INFO)
	h := api.NewHandler(loader, cfg.Derive.RowFields)
	h.RegisterRoutes(e)

	// 3. Launch the load in the background
	go func() {
		log.Infof("BACKGROUND: loading %s", src.URL())
		t0 := time.Now()

		snap := loader.Load(ctx)
		if snap.State != engine.Loaded {
			log.Errorf("BACKGROUND: load failed after %v; API stays unavailable: %v", time.Since(t0), snap.Err)
			return
		}
		log.Infof("BACKGROUND: load complete in %v. API is fully ready.", time.Since(t0))
	}()

	// 4. Start serving immediately
	log.Infof("Server ready on %s (data loading in background...)", cfg.HTTP.Addr)
	e.Logger.Fatal(e.Start(cfg.HTTP.Addr))
}

func loadConfig(configFile, sourceURL, addr string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configFile != "" {
		var err error
		if cfg, err = config.LoadFromFile(configFile); err != nil {
			return nil, err
		}
	}
	if err := config.LoadFromEnv(cfg); err != nil {
		return nil, err
	}

	// flags win over file and environment
	if sourceURL != "" {
		cfg.Source.URL = sourceURL
	}
	if addr != "" {
		cfg.HTTP.Addr = addr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
