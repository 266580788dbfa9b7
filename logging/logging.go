package logging

//
// Copyright (c) 2019 ARM Limited.
//
// SPDX-License-Identifier: MIT
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to
// deal in the Software without restriction, including without limitation the
// rights to use, copy, modify, merge, publish, distribute, sublicense, and/or
// sell copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//

import (
	"os"
	"strings"
	"sync"

	"github.com/op/go-logging"
)

var Log = logging.MustGetLogger("regionsync")

// Logs go to stderr only. Commands print their results on stdout.
var backend = &levelGuard{level: logging.DEBUG}

func init() {
	format := logging.MustStringFormatter(`%{color}%{time:2006-01-02 15:04:05.000} %{level:.4s} %{shortfile}%{color:reset} %{message}`)

	backend.backend = logging.NewBackendFormatter(logging.NewLogBackend(os.Stderr, "", 0), format)

	logging.SetBackend(backend)
}

// levelGuard filters records below a single level that may change while
// other goroutines are logging. Module names are ignored.
type levelGuard struct {
	mu      sync.RWMutex
	level   logging.Level
	backend logging.Backend
}

func (guard *levelGuard) Log(level logging.Level, calldepth int, rec *logging.Record) error {
	if !guard.IsEnabledFor(level, rec.Module) {
		return nil
	}

	return guard.backend.Log(level, calldepth+1, rec)
}

func (guard *levelGuard) GetLevel(module string) logging.Level {
	guard.mu.RLock()
	defer guard.mu.RUnlock()

	return guard.level
}

func (guard *levelGuard) SetLevel(level logging.Level, module string) {
	guard.mu.Lock()
	defer guard.mu.Unlock()

	guard.level = level
}

func (guard *levelGuard) IsEnabledFor(level logging.Level, module string) bool {
	return level <= guard.GetLevel(module)
}

func parseLevel(name string) (logging.Level, error) {
	return logging.LogLevel(strings.ToUpper(strings.TrimSpace(name)))
}

func LogLevelIsValid(name string) bool {
	_, err := parseLevel(name)

	return err == nil
}

// SetLoggingLevel falls back to ERROR when name is not a level.
func SetLoggingLevel(name string) {
	level, err := parseLevel(name)

	if err != nil {
		level = logging.ERROR
	}

	backend.SetLevel(level, "")
}
