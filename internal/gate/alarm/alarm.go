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

// Package alarm is the best-effort async outbound notifier spec §4.7
// describes: a triggered rule becomes one fire-and-forget POST, carrying a
// JSON payload describing what triggered and why. Delivery failures are
// logged and dropped; nothing here ever blocks or fails a request.
package alarm

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/ealvarez/fusegate/internal/gate/workqueue"
)

const postTimeout = 500 * time.Millisecond

// Payload is the JSON body of one alarm POST, exactly the field set spec
// §4.7 specifies.
type Payload struct {
	Feature     string  `json:"feature"`
	Duration    int64   `json:"duration"`
	Threshold   float64 `json:"threshold"`
	Probability float64 `json:"probability"`
	Command     string  `json:"command"`
	ActualValue float64 `json:"actual_value"`
	ClientIP    string  `json:"client_ip"`
	TriggerTime int64   `json:"trigger_time"`
}

// Dispatcher enqueues alarm payloads onto a bounded, drop-oldest queue
// (internal/gate/workqueue, the same discipline telemetry writes use) and
// POSTs them from a small worker pool so the evaluator's request path
// never waits on network I/O.
type Dispatcher struct {
	url    string
	client *http.Client
	queue  *workqueue.Queue[Payload]
}

// Options configures a Dispatcher's queue and HTTP client.
type Options struct {
	URL        string
	QueueSize  int
	Workers    int
	OnDropped  func()
	OnPostFail func(err error)
}

// NewDispatcher creates a Dispatcher POSTing to opts.URL. An empty URL is
// valid: Fire becomes a no-op, for deployments with no alarm sink
// configured.
func NewDispatcher(opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 4096
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}

	d := &Dispatcher{
		url:    opts.URL,
		client: &http.Client{Timeout: postTimeout},
	}
	onDrop := func(Payload) {
		if opts.OnDropped != nil {
			opts.OnDropped()
		}
	}
	d.queue = workqueue.New(opts.QueueSize, opts.Workers, func(p Payload) {
		if err := d.post(p); err != nil {
			if opts.OnPostFail != nil {
				opts.OnPostFail(err)
			} else {
				log.Printf("alarm: post failed: %v", err)
			}
		}
	}, onDrop)
	return d
}

// Fire enqueues p for delivery. It never blocks: on a saturated queue the
// oldest pending alarm is dropped to make room.
func (d *Dispatcher) Fire(p Payload) {
	if d.url == "" {
		return
	}
	d.queue.Submit(p)
}

// Close drains the queue and stops accepting new alarms.
func (d *Dispatcher) Close() { d.queue.Close() }

func (d *Dispatcher) post(p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}

	form := url.Values{"msg": {string(body)}}
	ctx, cancel := context.WithTimeout(context.Background(), postTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}
