/*
Copyright 2025 Jordi Gil.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// The frontend service is the client-facing shell: it authenticates
// callers and forwards every management endpoint one-to-one.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/jordigilh/enclaveops/internal/config"
	"github.com/jordigilh/enclaveops/internal/logging"
	"github.com/jordigilh/enclaveops/pkg/auth"
	"github.com/jordigilh/enclaveops/pkg/frontend"
	"github.com/jordigilh/enclaveops/pkg/management"
)

func main() {
	configPath := flag.String("config", "config/enclaveops.yaml", "path to the configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "frontend-service: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	log.Logger = log.Logger.WithValues("service", "frontend")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	closeWatch, err := config.Watch(configPath, log.Logger, func(updated *config.Config) {
		log.SetLevel(updated.Logging.Level)
	})
	if err != nil {
		log.Info("config watch disabled", "error", err.Error())
	} else {
		defer func() { _ = closeWatch() }()
	}

	svc := frontend.NewService(
		management.NewClient(cfg.Frontend.ManagementAddress),
		auth.NewClient(cfg.Frontend.AuthenticationAddress),
		log.Logger,
	)

	apiServer := &http.Server{
		Addr:    cfg.Frontend.ListenAddress,
		Handler: frontend.NewRouter(svc, log.Logger),
	}
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:    cfg.Frontend.MetricsAddress,
		Handler: metricsMux,
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("frontend api listening", "address", cfg.Frontend.ListenAddress)
		return ignoreClosed(apiServer.ListenAndServe())
	})
	group.Go(func() error {
		log.Info("metrics listening", "address", cfg.Frontend.MetricsAddress)
		return ignoreClosed(metricsServer.ListenAndServe())
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
		return apiServer.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

func ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
