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
	"fmt"

	"github.com/superkkt/maple/routing"
	"github.com/superkkt/maple/telemetry"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

func initConfig() {
	viper.SetConfigFile(*defaultConfigFile)
	// Read the config file.
	if err := viper.ReadInConfig(); err != nil {
		logger.Fatalf("failed to read the config file: %v", err)
	}
	// Watching and re-reading config file whenever it changes.
	viper.OnConfigChange(func(e fsnotify.Event) {
		// Ignore the WRITE operation to avoid reading empty config.
		if e.Op != fsnotify.Write {
			return
		}

		if loggerLeveled != nil {
			// Set log level for all modules
			loggerLeveled.SetLevel(getLogLevel(viper.GetString("default.log_level")), "")
		}
	})
	viper.WatchConfig()
	if err := validateConfig(); err != nil {
		logger.Fatalf("failed to validate the configuration: %v", err)
	}
}

func validateConfig() error {
	if port := viper.GetInt("default.port"); port <= 0 || port > 0xFFFF {
		return fmt.Errorf("invalid default.port")
	}
	if len(viper.GetString("default.log_level")) == 0 {
		return fmt.Errorf("invalid default.log_level")
	}
	if port := viper.GetInt("rest.port"); port <= 0 || port > 0xFFFF {
		return fmt.Errorf("invalid rest.port")
	}
	if viper.GetBool("rest.tls") == true {
		if len(viper.GetString("rest.cert_file")) == 0 || len(viper.GetString("rest.key_file")) == 0 {
			return fmt.Errorf("rest.tls is enabled, but rest.cert_file or rest.key_file is missing")
		}
	}
	if v := viper.GetDuration("telemetry.poll_interval"); v < 0 {
		return fmt.Errorf("invalid telemetry.poll_interval")
	}
	if v := viper.GetInt("routing.hard_timeout"); v < 0 || v > 0xFFFF {
		return fmt.Errorf("invalid routing.hard_timeout")
	}
	if v := viper.GetInt("routing.idle_timeout"); v < 0 || v > 0xFFFF {
		return fmt.Errorf("invalid routing.idle_timeout")
	}

	return nil
}

// routeConfig starts from the defaults and overrides only what the config
// file sets.
func routeConfig() routing.Config {
	conf := routing.DefaultConfig()
	if v := viper.GetInt("routing.idle_timeout"); v > 0 {
		conf.IdleTimeout = uint16(v)
	}
	if v := viper.GetInt("routing.hard_timeout"); v > 0 {
		conf.HardTimeout = uint16(v)
	}
	if v := viper.GetDuration("routing.hop_timeout"); v > 0 {
		conf.HopTimeout = v
	}

	return conf
}

func telemetryConfig() telemetry.Config {
	conf := telemetry.DefaultConfig()
	if v := viper.GetDuration("telemetry.poll_interval"); v > 0 {
		conf.Interval = v
	}
	if v := viper.GetDuration("telemetry.poll_timeout"); v > 0 {
		conf.Timeout = v
	}
	if v := viper.GetFloat64("telemetry.default_capacity"); v > 0 {
		conf.DefaultCapacity = v
	}

	return conf
}
