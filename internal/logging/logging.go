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

// Package logging builds the process logger the services thread through
// as a logr.Logger. The level is atomic so a config reload can adjust it
// on a running process.
package logging

import (
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger couples the logr front-end with the level handle that config
// reloads adjust.
type Logger struct {
	logr.Logger
	level zap.AtomicLevel
}

// New builds a logger with the given level ("debug", "info", "warn",
// "error") and format ("json" or "console").
func New(level, format string) (Logger, error) {
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return Logger{}, err
	}
	atomic := zap.NewAtomicLevelAt(parsed)

	var encoder zapcore.Encoder
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if format == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), atomic)
	zapLogger := zap.New(core)

	return Logger{
		Logger: zapr.NewLogger(zapLogger),
		level:  atomic,
	}, nil
}

// SetLevel adjusts the level of a running logger. Unknown levels are
// ignored so a bad config reload cannot silence the process.
func (l Logger) SetLevel(level string) {
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		l.Info("ignoring unknown log level", "level", level)
		return
	}
	l.level.SetLevel(parsed)
}
