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

package ratelimit

import (
	"context"
	"math/rand"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ealvarez/fusegate/internal/gate/clock"
	"github.com/ealvarez/fusegate/internal/gate/rules"
	"github.com/ealvarez/fusegate/internal/gate/storekit"
	"github.com/ealvarez/fusegate/internal/gate/telemetry"
)

func newLimiter(t *testing.T, ruleJSON string) (*Limiter, *clock.Manual) {
	t.Helper()
	dir := t.TempDir()
	if ruleJSON != "" {
		if err := os.WriteFile(filepath.Join(dir, "rate.json"), []byte(ruleJSON), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	registry, err := rules.LoadDirectory(dir)
	if err != nil {
		t.Fatal(err)
	}

	clk := clock.NewManual(100_000_000, 100)
	store := telemetry.NewStore(storekit.NewMemoryStore(), clk, telemetry.Options{Prefix: "ratestatus", ExpiredSeconds: 600})
	eval := rules.NewEvaluator(store, rand.New(rand.NewSource(1)))
	return New(store, registry, eval, "rate", nil), clk
}

func TestLimiterRejectsMissingDeviceHeader(t *testing.T) {
	l, _ := newLimiter(t, `{"global": [{"feature": "single_command_hits", "duration": 60, "threshold": 5, "probability": 100}]}`)
	req := httptest.NewRequest("GET", "/api/orders", nil)

	d := l.Check(context.Background(), req, "api/orders")
	if !d.Limited {
		t.Fatalf("missing device header must be rejected")
	}
}

func TestLimiterIgnoredCommandBypassesDeviceCheck(t *testing.T) {
	l, _ := newLimiter(t, `{"commands": {"api/health": []}}`)
	req := httptest.NewRequest("GET", "/api/health", nil)

	d := l.Check(context.Background(), req, "api/health")
	if d.Limited {
		t.Fatalf("an ignored command must never be limited, even without a device header")
	}
}

func TestLimiterSingleCommandHitsTriggersAfterThreshold(t *testing.T) {
	l, _ := newLimiter(t, `{"global": [{"feature": "single_command_hits", "duration": 60, "threshold": 3, "probability": 100}]}`)

	// Pre-seed 3 prior hits for this (device, command) pair, then stop the
	// store once so every write is visible before the evaluating request.
	for i := 0; i < 3; i++ {
		l.recordHit("device_1", "api_orders")
	}
	l.store.Stop()

	req := httptest.NewRequest("GET", "/api/orders", nil)
	req.Header.Set(DeviceHeader, "device-1")
	d := l.Check(context.Background(), req, "api/orders")
	if !d.Limited {
		t.Fatalf("a 4th hit after 3 prior ones should have crossed the threshold")
	}
}

func TestLimiterTotalCommandHitsSpansCommands(t *testing.T) {
	l, _ := newLimiter(t, `{"global": [{"feature": "total_command_hits", "duration": 60, "threshold": 2, "probability": 100}]}`)

	// Two prior hits against a different command from the same device still
	// count toward total_command_hits.
	l.recordHit("device_2", "api_orders")
	l.recordHit("device_2", "api_invoices")
	l.store.Stop()

	req := httptest.NewRequest("GET", "/api/invoices", nil)
	req.Header.Set(DeviceHeader, "device-2")
	d := l.Check(context.Background(), req, "api/invoices")
	if !d.Limited {
		t.Fatalf("a different command from the same device must still count toward total_command_hits")
	}
}

func TestLimiterRuleHeaderOverridesRegistry(t *testing.T) {
	l, _ := newLimiter(t, "")
	req := httptest.NewRequest("GET", "/api/orders", nil)
	req.Header.Set(DeviceHeader, "device-3")
	req.Header.Set(RuleHeader, "single_command_hits:60:0:100")

	d := l.Check(context.Background(), req, "api/orders")
	if !d.Limited {
		t.Fatalf("override rule with threshold 0 should trigger on the very first hit")
	}
}
