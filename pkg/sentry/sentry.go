// Copyright 2025 UMH Systems GmbH
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

package sentry

import (
	"os"
	"sync/atomic"
	"time"

	sentrygo "github.com/getsentry/sentry-go"
)

var enabled atomic.Bool

// InitSentry initializes the Sentry SDK. Reporting is a no-op when no DSN is
// configured (the common case on isolated factory networks) or when the
// operator opted out.
func InitSentry(release string, allowReporting bool) {
	dsn := os.Getenv("SENTRY_DSN")
	if dsn == "" || !allowReporting {
		return
	}

	err := sentrygo.Init(sentrygo.ClientOptions{
		Dsn:     dsn,
		Release: release,
	})
	if err != nil {
		// Reporting is best-effort; the server runs fine without it.
		return
	}

	enabled.Store(true)
}

// Flush drains queued events before shutdown.
func Flush(timeout time.Duration) {
	if enabled.Load() {
		sentrygo.Flush(timeout)
	}
}

func captureIssue(err error, level sentrygo.Level) {
	if !enabled.Load() {
		return
	}

	sentrygo.WithScope(func(scope *sentrygo.Scope) {
		scope.SetLevel(level)
		sentrygo.CaptureException(err)
	})
}
