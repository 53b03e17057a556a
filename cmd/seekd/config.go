// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/user"
	"path/filepath"
)

type config struct {
	Port       int
	Continuous bool
	MQTT       mqttConfig
}

type mqttConfig struct {
	Broker   string // e.g. tcp://localhost:1883. Empty disables publishing.
	ClientID string
	Topic    string
	QoS      byte
}

func (m *mqttConfig) isValid() bool {
	return m.Broker != "" && m.Topic != "" && m.QoS <= 2
}

func defaultConfig() config {
	return config{
		Port: 8010,
		MQTT: mqttConfig{ClientID: "seekd", Topic: "seek/img"},
	}
}

// defaultConfigPath returns ~/.config/seek/seekd.json.
func defaultConfigPath() string {
	home := os.Getenv("HOME")
	if usr, err := user.Current(); err == nil {
		home = usr.HomeDir
	}
	return filepath.Join(home, ".config", "seek", "seekd.json")
}

// loadConfig loads the config at path, or creates one with the default values
// if none exists.
//
// The file is rewritten in its normalized form when it differs.
func loadConfig(path string) (*config, error) {
	c := defaultConfig()
	srcData, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(srcData, &c); err != nil {
			return nil, fmt.Errorf("%s is invalid json: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	data, err := json.MarshalIndent(&c, "", "  ")
	if err != nil {
		return nil, err
	}
	data = append(data, '\n')
	if !bytes.Equal(srcData, data) {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			log.Printf("failed to create %s: %s", filepath.Dir(path), err)
		} else if err := os.WriteFile(path, data, 0600); err != nil {
			log.Printf("failed to write %s: %s", path, err)
		}
	}
	return &c, nil
}
