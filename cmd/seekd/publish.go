// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/maruel/go-seek/seek"
)

// Publisher sends each measurement as JSON to a MQTT broker.
type Publisher struct {
	client  mqtt.Client
	cfg     mqttConfig
	session string
	sent    atomic.Int64
	failed  atomic.Int64
}

// PublisherStats is the number of messages published.
type PublisherStats struct {
	Sent   int64
	Failed int64
}

func newPublisher(cfg *mqttConfig, session string) (*Publisher, error) {
	if !cfg.isValid() {
		return nil, errors.New("mqtt: broker and topic are required, qos must be at most 2")
	}
	opts := mqtt.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.SetKeepAlive(2 * time.Second)
	opts.SetPingTimeout(time.Second)
	opts.SetAutoReconnect(true)
	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, fmt.Errorf("mqtt: timed out connecting to %s", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: %w", err)
	}
	fmt.Printf("Publishing to %s on %s\n", cfg.Broker, cfg.Topic)
	return &Publisher{client: c, cfg: *cfg, session: session}, nil
}

// Publish sends m without waiting for the broker acknowledgement.
func (p *Publisher) Publish(m *seek.Measurement) {
	b, err := json.Marshal(toMeasured(p.session, m, m.Frame.Bounds()))
	if err != nil {
		p.failed.Add(1)
		log.Printf("mqtt: %s", err)
		return
	}
	token := p.client.Publish(p.cfg.Topic, p.cfg.QoS, false, b)
	go func() {
		if token.Wait(); token.Error() != nil {
			p.failed.Add(1)
			log.Printf("mqtt: failed to publish measurement %d: %s", m.ID, token.Error())
			return
		}
		p.sent.Add(1)
	}()
}

// Stats returns the number of messages published.
func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{Sent: p.sent.Load(), Failed: p.failed.Load()}
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
