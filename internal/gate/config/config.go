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

// Package config is the single immutable Config struct spec §9's "global
// mutable registry" redesign flag calls for: every tunable is read once at
// startup, by flag.Parse, into a struct passed explicitly through the
// wiring in cmd/fusegate-proxy rather than consulted from a package-level
// variable at request time.
package config

import (
	"flag"
	"fmt"
	"time"
)

// Config is the full set of startup tunables for the proxy.
type Config struct {
	RedisAddr        string
	RedisPassword    string
	RedisPoolSize    int
	RedisIdleTimeout time.Duration

	RulesDir       string
	ExpiredSeconds int64
	SweepInterval  time.Duration

	AlarmURL       string
	AlarmQueueSize int
	AlarmWorkers   int

	WriteQueueSize int
	WriteWorkers   int

	FuseRuleSet   string
	AlarmRuleSet  string
	RateRuleSet   string

	Upstream    string
	ListenAddr  string
	AdminAddr   string
	MetricsAddr string
}

// Parse reads flags from args (normally os.Args[1:]) into a Config,
// applying the same one-flag-per-tunable style as the teacher's
// cmd/ratelimiter-api/main.go.
func Parse(args []string) (Config, error) {
	fs := flag.NewFlagSet("fusegate-proxy", flag.ContinueOnError)

	var c Config
	fs.StringVar(&c.RedisAddr, "redis_addr", "", "redis host:port (empty uses an in-memory store)")
	fs.StringVar(&c.RedisPassword, "redis_password", "", "redis auth password")
	fs.IntVar(&c.RedisPoolSize, "redis_pool_size", 50, "redis connection pool size")
	fs.DurationVar(&c.RedisIdleTimeout, "redis_idle_timeout", 5*time.Second, "redis pool acquire timeout")

	fs.StringVar(&c.RulesDir, "rules_dir", "./rules", "directory of *.json rule documents")
	fs.Int64Var(&c.ExpiredSeconds, "expired_seconds", 3600, "telemetry retention window, seconds")
	fs.DurationVar(&c.SweepInterval, "sweep_interval", 10*time.Minute, "interval between automatic sweeps (0 disables the internal ticker; the admin endpoint still works)")

	fs.StringVar(&c.AlarmURL, "alarm_url", "", "alarm POST target (empty disables alarm delivery)")
	fs.IntVar(&c.AlarmQueueSize, "alarm_queue_size", 4096, "bounded alarm dispatch queue size")
	fs.IntVar(&c.AlarmWorkers, "alarm_workers", 2, "alarm dispatch worker count")

	fs.IntVar(&c.WriteQueueSize, "write_queue_size", 4096, "bounded telemetry write queue size")
	fs.IntVar(&c.WriteWorkers, "write_workers", 4, "telemetry write worker count")

	fs.StringVar(&c.FuseRuleSet, "fuse_rule_set", "fuse", "rule document name evaluated for circuit-breaker fusing")
	fs.StringVar(&c.AlarmRuleSet, "alarm_rule_set", "alarm", "rule document name evaluated for alarms")
	fs.StringVar(&c.RateRuleSet, "rate_rule_set", "rate", "rule document name evaluated by the device rate limiter")

	fs.StringVar(&c.Upstream, "upstream", "", "upstream base URL, e.g. http://localhost:8081")
	fs.StringVar(&c.ListenAddr, "listen_addr", ":8080", "proxy listen address")
	fs.StringVar(&c.AdminAddr, "admin_addr", "127.0.0.1:8089", "loopback-only admin (sweep) listen address")
	fs.StringVar(&c.MetricsAddr, "metrics_addr", ":9090", "prometheus /metrics listen address")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if c.Upstream == "" {
		return Config{}, fmt.Errorf("config: -upstream is required")
	}
	return c, nil
}
