package main

import (
	"github.com/szxp/imgfit"
	"github.com/szxp/imgfit/filestore"
	"github.com/szxp/imgfit/imagemagick"
	"github.com/szxp/imgfit/nfnt"

	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hashicorp/go-hclog"
)

// version will be set while building
var version string

// buildTime will be set while building
var buildTime string

func main() {
	configPath := flag.String("config", os.Getenv(envConfig), "path to TOML config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		hclog.Default().Error("Failed to load config. Exit now", "err", err)
		os.Exit(1)
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Output:          os.Stdout,
		Level:           hclog.LevelFromString(cfg.LogLevel),
		IncludeLocation: true,
	}).With("appVersion", version)

	logger.Info("Build info", "time", buildTime)

	err = initialize(logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize. Exit now", "err", err)
		os.Exit(1)
	}
	logger.Info("Exit normally")
}

func newResizer(logger hclog.Logger, cfg *Config) (imgfit.Resizer, error) {
	switch cfg.Resizer {
	case resizerNfnt:
		return nfnt.Resizer{}, nil
	case resizerImageMagick:
		ver, err := imagemagick.Version(cfg.ImageMagickBin)
		if err != nil {
			return nil, err
		}
		logger.Info("ImageMagick", "version", strings.SplitN(ver, "\n", 2)[0])
		return &imagemagick.Resizer{Binary: cfg.ImageMagickBin, Logger: logger}, nil
	}
	return imgfit.LanczosResizer{}, nil
}

func newServer(logger hclog.Logger, cfg *Config) (*imgfit.Server, error) {
	uploads, err := filestore.New(filestore.Config{
		Dir:         cfg.UploadDir,
		Prefix:      "upload",
		AllowedExts: imgfit.AllowedExts,
		Logger:      logger.Named("uploads"),
	})
	if err != nil {
		return nil, err
	}

	processed, err := filestore.New(filestore.Config{
		Dir:         cfg.ProcessedDir,
		Prefix:      "processed",
		AllowedExts: imgfit.AllowedExts,
		Logger:      logger.Named("processed"),
	})
	if err != nil {
		return nil, err
	}

	resizer, err := newResizer(logger.Named("resizer"), cfg)
	if err != nil {
		return nil, err
	}

	encoder := cfg.JPEG.Encoder()
	encoder.Logger = logger.Named("encoder")

	processor, err := imgfit.NewProcessor(imgfit.ProcessorConfig{
		Resizer:         resizer,
		Encoder:         encoder,
		MaxDimension:    cfg.MaxDimension,
		MaxSourcePixels: cfg.MaxSourcePixels,
		Logger:          logger.Named("processor"),
	})
	if err != nil {
		return nil, err
	}

	return imgfit.NewServer(imgfit.ServerConfig{
		Uploads:        uploads,
		Processed:      processed,
		Processor:      processor,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Logger:         logger.Named("HTTP server"),
	})
}

func initialize(logger hclog.Logger, cfg *Config) error {
	handler, err := newServer(logger, cfg)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler,
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Signal received", "sig", sig)

		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Error("HTTP server Shutdown", "error", err)
		}
		close(idleConnsClosed)
	}()

	logger.Info("Listening", "addr", cfg.HTTPAddr)
	err = srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}

	<-idleConnsClosed
	return nil
}
