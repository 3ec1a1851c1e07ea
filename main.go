/*
 * Maple - An OpenFlow Controller
 *
 * Copyright (C) 2015 Samjung Data Service, Inc. All rights reserved.
 * Kitae Kim <superkkt@sds.co.kr>
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation; either version 2 of the License, or
 * any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License along
 * with this program; if not, write to the Free Software Foundation, Inc.,
 * 51 Franklin Street, Fifth Floor, Boston, MA 02110-1301 USA.
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/superkkt/maple/api"
	"github.com/superkkt/maple/network"
	"github.com/superkkt/maple/routing"
	"github.com/superkkt/maple/telemetry"
	"github.com/superkkt/maple/topology"

	"github.com/op/go-logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/viper"
)

const (
	programName     = "maple"
	programVersion  = "0.1.0"
	defaultLogLevel = logging.INFO
)

var (
	logger            = logging.MustGetLogger("main")
	loggerLeveled     logging.LeveledBackend
	showVersion       = flag.Bool("version", false, "Show program version and exit")
	logToStderr       = flag.Bool("stderr", false, "Log to stderr instead of syslog")
	defaultConfigFile = flag.String("config", fmt.Sprintf("/usr/local/etc/%v.yaml", programName), "absolute path of the configuration file")
)

func main() {
	runtime.GOMAXPROCS(runtime.NumCPU())
	flag.Parse()
	if *showVersion {
		fmt.Printf("Version: %v\n", programVersion)
		os.Exit(0)
	}

	initConfig()
	if err := initLog(getLogLevel(viper.GetString("default.log_level"))); err != nil {
		logger.Fatalf("failed to init log: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	topo := topology.NewStore()
	controller := network.NewController(topo)
	routes := routing.NewManager(controller, topo, routeConfig())
	collector := telemetry.NewCollector(controller, telemetryConfig())
	controller.Bind(routes, collector)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := collector.Register(registry); err != nil {
		logger.Fatalf("failed to register telemetry metrics: %v", err)
	}

	go routes.Run(ctx)
	go collector.Run(ctx)
	initAPIServer(topo, routes, collector, registry)
	initSignalHandler(cancel)

	listen(ctx, viper.GetInt("default.port"), controller)
}

func initAPIServer(topo *topology.Store, routes *routing.Manager, collector *telemetry.Collector, registry *prometheus.Registry) {
	go func() {
		srv := &api.Server{
			Port:     uint16(viper.GetInt("rest.port")),
			Topology: topo,
			Routes:   routes,
			Stats:    collector,
			Gatherer: registry,
		}
		if viper.GetBool("rest.tls") == true {
			srv.TLS.Cert = viper.GetString("rest.cert_file")
			srv.TLS.Key = viper.GetString("rest.key_file")
		}

		if err := srv.Serve(); err != nil {
			logger.Fatalf("failed to run the API server: %v", err)
		}
	}()
}

func initSignalHandler(cancel context.CancelFunc) {
	go func() {
		c := make(chan os.Signal, 5)
		// All incoming signals will be transferred to the channel
		signal.Notify(c)

		// Infinte loop.
		for {
			s := <-c
			if s == syscall.SIGTERM || s == syscall.SIGINT {
				// Graceful shutdown
				logger.Warning("Shutting down...")
				cancel()
				// Timeout for cancelation
				time.Sleep(5 * time.Second)
				os.Exit(0)
			}
		}
	}()
}

func initLog(level logging.Level) error {
	var backend logging.Backend
	if *logToStderr {
		backend = logging.NewLogBackend(os.Stderr, "", 0)
	} else {
		b, err := newSyslog(programName)
		if err != nil {
			return err
		}
		backend = b
	}
	backend = logging.NewBackendFormatter(backend, logging.MustStringFormatter(`%{level}: %{shortpkg}.%{shortfunc}: %{message}`))

	loggerLeveled = logging.AddModuleLevel(backend)
	// Set log level for all modules
	loggerLeveled.SetLevel(level, "")
	logging.SetBackend(loggerLeveled)

	return nil
}

func getLogLevel(level string) logging.Level {
	level = strings.ToUpper(level)
	ret, err := logging.LogLevel(level)
	if err != nil {
		logger.Infof("invalid log level=%v, defaulting to %v..", level, defaultLogLevel)
		return defaultLogLevel
	}

	return ret
}

func listen(ctx context.Context, port int, controller *network.Controller) {
	type KeepAliver interface {
		SetKeepAlive(keepalive bool) error
		SetKeepAlivePeriod(d time.Duration) error
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%v", port))
	if err != nil {
		logger.Errorf("failed to listen on %v port: %v", port, err)
		return
	}
	defer listener.Close()

	// Connection dispatcher.
	f := func(c chan<- net.Conn) {
		for {
			conn, err := listener.Accept()
			if err != nil {
				logger.Errorf("failed to accept a new connection: %v", err)
				continue
			}
			logger.Infof("new device is connected from %v", conn.RemoteAddr())

			// Pass the new connection into the backlog queue.
			c <- conn
		}
	}
	backlog := make(chan net.Conn, 32)
	go f(backlog)

	// Infinite loop
	for {
		select {
		case <-ctx.Done():
			logger.Debug("terminating the main listener loop...")
			return
		case conn := <-backlog:
			logger.Debug("fetching a new connection from the backlog..")
			if v, ok := conn.(KeepAliver); ok {
				logger.Debug("trying to enable socket keepalive..")
				if err := v.SetKeepAlive(true); err == nil {
					logger.Debug("setting socket keepalive period...")
					// Makes a broken connection will be disconnected within 45 seconds.
					// http://felixge.de/2014/08/26/tcp-keepalive-with-golang.html
					v.SetKeepAlivePeriod(time.Duration(5) * time.Second)
				} else {
					logger.Errorf("failed to enable socket keepalive: %v", err)
				}
			}
			go controller.AddConnection(ctx, conn)
		}
	}
}
