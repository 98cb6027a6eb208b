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

package telemetry

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const sweepBatchSize = 25

// Sweep deletes events older than the store's configured retention window
// and returns a human-readable log of the run, the same shape the admin
// endpoint returns as its response body.
func (s *Store) Sweep(ctx context.Context) (string, error) {
	start := time.Now()
	expiredOffset := s.clk.NowMicros() - s.expiredSeconds*1_000_000

	commands, err := s.backend.ZRange(ctx, s.lastExecKey())
	if err != nil {
		return "", fmt.Errorf("telemetry: sweep zrange %s: %w", s.lastExecKey(), err)
	}

	if _, err := s.backend.ZRemRangeByScore(ctx, s.lastExecKey(), 0, expiredOffset); err != nil {
		return "", fmt.Errorf("telemetry: sweep zremrangebyscore %s: %w", s.lastExecKey(), err)
	}

	var succeeded, failed int
	for i := 0; i < len(commands); i += sweepBatchSize {
		batch := commands[i:min(i+sweepBatchSize, len(commands))]
		p := s.backend.Pipeline()
		for _, cmd := range batch {
			p.ZRemRangeByScore(s.execTimeKey(cmd), 0, expiredOffset)
			p.ZRemRangeByScore(s.execStatusKey(cmd), 0, expiredOffset)
		}
		if err := p.Exec(ctx); err != nil {
			failed += len(batch)
			s.logBackendError("sweep_batch", err)
			continue
		}
		succeeded += len(batch)
	}

	end := time.Now()
	var b strings.Builder
	fmt.Fprintf(&b, "sweep start=%s\n", start.Format(time.RFC3339))
	fmt.Fprintf(&b, "commands scheduled=%d\n", len(commands))
	fmt.Fprintf(&b, "succeeded=%d\n", succeeded)
	fmt.Fprintf(&b, "failed=%d\n", failed)
	fmt.Fprintf(&b, "sweep end=%s\n", end.Format(time.RFC3339))
	return b.String(), nil
}
