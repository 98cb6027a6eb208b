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

// Package proxy is the reverse-proxy middleware from spec §4.9: a
// pre-upstream gate (classify, rate-limit, fuse) and a post-upstream
// recorder, built on net/http/httputil.ReverseProxy.
package proxy

import (
	"context"
	"net/http"
	"time"
)

type stateKey struct{}

// requestState is the explicit, request-scoped value threaded through the
// middleware's phases (spec §9: "Per-request context object: explicit
// value threaded through middleware phases, containing start timestamp,
// classified command, ignorable flag") instead of any package-level
// mutable bookkeeping.
type requestState struct {
	start      time.Time
	command    string
	commandKey string
	ignorable  bool
	fused      bool
}

func withState(r *http.Request, st *requestState) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), stateKey{}, st))
}

func stateFrom(r *http.Request) *requestState {
	st, _ := r.Context().Value(stateKey{}).(*requestState)
	return st
}
