// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package main wires the reverse-proxy rule engine together: config ->
// backend pool -> rule registry -> telemetry store -> evaluator -> alarm
// dispatcher -> httputil.ReverseProxy with the gate's middleware hooks,
// plus a loopback-only admin sweep endpoint and a Prometheus /metrics
// server.
package main

import (
	"context"
	"log"
	"math/rand"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ealvarez/fusegate/internal/gate/alarm"
	"github.com/ealvarez/fusegate/internal/gate/clock"
	"github.com/ealvarez/fusegate/internal/gate/config"
	"github.com/ealvarez/fusegate/internal/gate/obsv"
	"github.com/ealvarez/fusegate/internal/gate/proxy"
	"github.com/ealvarez/fusegate/internal/gate/ratelimit"
	"github.com/ealvarez/fusegate/internal/gate/rules"
	"github.com/ealvarez/fusegate/internal/gate/storekit"
	"github.com/ealvarez/fusegate/internal/gate/telemetry"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	backend := newBackend(cfg)
	clk := clock.System{}
	metrics := obsv.New(prometheus.DefaultRegisterer)

	registry, err := rules.LoadDirectory(cfg.RulesDir)
	if err != nil {
		log.Fatalf("rules: loading %s: %v", cfg.RulesDir, err)
	}

	store := telemetry.NewStore(backend, clk, telemetry.Options{
		Prefix:         "apistatus",
		ExpiredSeconds: cfg.ExpiredSeconds,
		QueueSize:      cfg.WriteQueueSize,
		Workers:        cfg.WriteWorkers,
		OnWriteDropped: metrics.TelemetryDropped.Inc,
		OnBackendError: func(op string, _ error) { metrics.BackendErrors.WithLabelValues(op).Inc() },
	})
	store.Start()
	defer store.Stop()

	rateStore := telemetry.NewStore(backend, clk, telemetry.Options{
		Prefix:         "ratestatus",
		ExpiredSeconds: cfg.ExpiredSeconds,
		QueueSize:      cfg.WriteQueueSize,
		Workers:        cfg.WriteWorkers,
		OnWriteDropped: metrics.TelemetryDropped.Inc,
		OnBackendError: func(op string, _ error) { metrics.BackendErrors.WithLabelValues(op).Inc() },
	})
	rateStore.Start()
	defer rateStore.Stop()

	eval := rules.NewEvaluator(store, rand.New(rand.NewSource(time.Now().UnixNano())))
	rateEval := rules.NewEvaluator(rateStore, rand.New(rand.NewSource(time.Now().UnixNano()+1)))
	limiter := ratelimit.New(rateStore, registry, rateEval, cfg.RateRuleSet, metrics)

	dispatcher := alarm.NewDispatcher(alarm.Options{
		URL:        cfg.AlarmURL,
		QueueSize:  cfg.AlarmQueueSize,
		Workers:    cfg.AlarmWorkers,
		OnDropped:  metrics.AlarmsDropped.Inc,
		OnPostFail: func(err error) { log.Printf("alarm: %v", err) },
	})
	defer dispatcher.Close()

	gate := proxy.New(proxy.Options{
		Registry:     registry,
		Evaluator:    eval,
		Store:        store,
		Limiter:      limiter,
		Alarms:       dispatcher,
		Clock:        clk,
		Metrics:      metrics,
		FuseRuleSet:  cfg.FuseRuleSet,
		AlarmRuleSet: cfg.AlarmRuleSet,
	})

	target, err := url.Parse(cfg.Upstream)
	if err != nil {
		log.Fatalf("config: bad -upstream %q: %v", cfg.Upstream, err)
	}
	rp := httputil.NewSingleHostReverseProxy(target)
	rp.ModifyResponse = gate.ModifyResponse
	rp.ErrorHandler = gate.ErrorHandler

	mainServer := &http.Server{Addr: cfg.ListenAddr, Handler: gate.Wrap(rp)}
	adminServer := &http.Server{Addr: cfg.AdminAddr, Handler: proxy.AdminHandler(store)}
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.Handler()}

	go runServer(mainServer, "proxy")
	go runServer(adminServer, "admin")
	go runServer(metricsServer, "metrics")

	if cfg.SweepInterval > 0 {
		go sweepLoop(store, cfg.SweepInterval)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("fusegate-proxy: shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = mainServer.Shutdown(ctx)
	_ = adminServer.Shutdown(ctx)
	_ = metricsServer.Shutdown(ctx)
}

func newBackend(cfg config.Config) storekit.Store {
	if cfg.RedisAddr == "" {
		log.Println("fusegate-proxy: no -redis_addr configured, using in-memory store")
		return storekit.NewMemoryStore()
	}
	return storekit.NewRedisStore(storekit.RedisConfig{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		PoolSize:    cfg.RedisPoolSize,
		IdleTimeout: cfg.RedisIdleTimeout,
	})
}

func runServer(srv *http.Server, name string) {
	log.Printf("fusegate-proxy: %s listening on %s", name, srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("fusegate-proxy: %s server: %v", name, err)
	}
}

func sweepLoop(store *telemetry.Store, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		out, err := store.Sweep(ctx)
		cancel()
		if err != nil {
			log.Printf("fusegate-proxy: sweep failed: %v", err)
			continue
		}
		log.Printf("fusegate-proxy: sweep complete\n%s", out)
	}
}
