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

package alarm

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"
)

func TestDispatcherFirePostsPayload(t *testing.T) {
	var mu sync.Mutex
	var got Payload
	var contentType, body string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		contentType = r.Header.Get("Content-Type")
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		values, _ := url.ParseQuery(body)
		_ = json.Unmarshal([]byte(values.Get("msg")), &got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher(Options{URL: srv.URL})
	defer d.Close()

	d.Fire(Payload{
		Feature:     "avg_exec_time",
		Duration:    60,
		Threshold:   500,
		Probability: 100,
		Command:     "orders",
		ActualValue: 600,
		ClientIP:    "10.0.0.1",
		TriggerTime: 123,
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		received := got.Command != ""
		mu.Unlock()
		if received {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if contentType != "application/x-www-form-urlencoded" {
		t.Fatalf("content type = %q", contentType)
	}
	if got.Command != "orders" || got.ActualValue != 600 {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestDispatcherEmptyURLIsNoop(t *testing.T) {
	d := NewDispatcher(Options{})
	defer d.Close()
	d.Fire(Payload{Command: "orders"})
}

func TestDispatcherPostFailureIsReported(t *testing.T) {
	var mu sync.Mutex
	var failed bool
	d := NewDispatcher(Options{
		URL: "http://127.0.0.1:1", // nothing listening
		OnPostFail: func(err error) {
			mu.Lock()
			failed = true
			mu.Unlock()
		},
	})
	defer d.Close()

	d.Fire(Payload{Command: "orders"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		f := failed
		mu.Unlock()
		if f {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected post failure callback")
}
