/*
 *    Copyright 2021 chenquan
 *
 *    Licensed under the Apache License, Version 2.0 (the "License");
 *    you may not use this file except in compliance with the License.
 *    You may obtain a copy of the License at
 *
 *        http://www.apache.org/licenses/LICENSE-2.0
 *
 *    Unless required by applicable law or agreed to in writing, software
 *    distributed under the License is distributed on an "AS IS" BASIS,
 *    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *    See the License for the specific language governing permissions and
 *    limitations under the License.
 */

// Command lighthouse starts the MQTT broker: load configuration, wire
// logging and tracing, bind the listeners, and run until an OS signal
// asks it to stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/yunqi/lighthouse/config"
	"github.com/yunqi/lighthouse/internal/goroutine"
	"github.com/yunqi/lighthouse/internal/server"
	"github.com/yunqi/lighthouse/internal/xlog"
	"github.com/yunqi/lighthouse/internal/xtrace"
)

// Exit codes per the broker's documented external interface.
const (
	exitOK = iota
	exitBadArgs
	exitRuntime
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("lighthouse", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a YAML configuration file; defaults built in if empty")
	jaegerEndpoint := fs.String("jaeger-endpoint", "", "Jaeger collector endpoint; takes precedence over -zipkin-endpoint; tracing is off when both are empty")
	zipkinEndpoint := fs.String("zipkin-endpoint", "", "Zipkin collector endpoint; tracing is off when both endpoints are empty")
	poolCapacity := fs.Int("pool-capacity", 0, "bounded goroutine pool capacity; <=0 means unbounded")
	if err := fs.Parse(args); err != nil {
		return exitBadArgs
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "lighthouse: load config: %v\n", err)
			return exitBadArgs
		}
		cfg = loaded
	} else if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "lighthouse: invalid default config: %v\n", err)
		return exitBadArgs
	}

	if err := xlog.Init(xlog.Options{
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
		Level:   cfg.Logging.Level,
		Disable: cfg.Logging.Disable,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "lighthouse: init logging: %v\n", err)
		return exitBadArgs
	}
	log := xlog.LoggerModule("main")

	shutdownTracing, err := xtrace.Init(xtrace.Options{
		JaegerEndpoint: *jaegerEndpoint,
		ZipkinEndpoint: *zipkinEndpoint,
		ServiceName:    "lighthouse",
	})
	if err != nil {
		log.Error("init tracing", zap.Error(err))
		return exitRuntime
	}

	if err := goroutine.Init(*poolCapacity); err != nil {
		log.Error("init goroutine pool", zap.Error(err))
		return exitRuntime
	}

	srv, err := server.New(cfg)
	if err != nil {
		log.Error("build server", zap.Error(err))
		return exitRuntime
	}

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- srv.Run() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-runErrCh:
		log.Error("server exited", zap.Error(err))
		return exitRuntime
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		log.Error("shutdown", zap.Error(err))
		return exitRuntime
	}
	if err := shutdownTracing(ctx); err != nil {
		log.Error("shutdown tracing", zap.Error(err))
	}
	return exitOK
}
