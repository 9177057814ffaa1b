// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Bucks County Community Church

package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/internal/logger"
)

// MQTTConf describes the broker connection
type MQTTConf struct {
	Broker   string // tcp://host:1883
	ClientID string
	Username string
	Password string
	Topic    string // events go to <Topic>/<kind>
	QoS      byte
}

// MQTTSink publishes events as JSON to an MQTT broker
type MQTTSink struct {
	client mqtt.Client
	topic  string
	qos    byte
	log    *logger.Log
	ctx    context.Context
}

// NewMQTTSink wraps an already configured client
func NewMQTTSink(ctx context.Context, client mqtt.Client, topic string, qos byte, log *logger.Log) *MQTTSink {
	return &MQTTSink{
		client: client,
		topic:  strings.TrimSuffix(topic, "/"),
		qos:    qos,
		log:    log.Module("mqtt"),
		ctx:    ctx,
	}
}

// StartMQTT connects to the broker and returns a sink. The client keeps
// reconnecting in the background if the broker goes away later.
func StartMQTT(ctx context.Context, cfg MQTTConf, log *logger.Log) (*MQTTSink, error) {
	mlog := log.Module("mqtt")

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetOnConnectHandler(func(mqtt.Client) {
			mlog.Info("client connected to broker")
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			mlog.Errorf("broker connection lost: %v", err)
		}).
		SetOrderMatters(false).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(5 * time.Second).
		SetKeepAlive(30 * time.Second)

	client := mqtt.NewClient(opts)

	token := client.Connect()
	select {
	case <-token.Done():
		if token.Error() != nil {
			return nil, token.Error()
		}
	case <-ctx.Done():
		client.Disconnect(250)
		return nil, errors.New("context canceled")
	case <-time.After(5 * time.Second):
		// ConnectRetry keeps trying; events published meanwhile are queued
		mlog.Warnf("broker %s not reachable yet, retrying in background", cfg.Broker)
	}

	return NewMQTTSink(ctx, client, cfg.Topic, cfg.QoS, log), nil
}

// Topic returns the topic an event of kind k is published to
func (s *MQTTSink) Topic(k Kind) string {
	return s.topic + "/" + string(k)
}

// Publish sends e without waiting for the broker; failures are logged
func (s *MQTTSink) Publish(e Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		s.log.Errorf("encode event: %v", err)
		return
	}

	topic := s.Topic(e.Kind)
	token := s.client.Publish(topic, s.qos, false, payload)
	go func() {
		select {
		case <-s.ctx.Done():
		case <-token.Done():
			if token.Error() != nil {
				s.log.Errorf("error publishing to %s: %v", topic, token.Error())
			}
		}
	}()
}

// Stop disconnects from the broker
func (s *MQTTSink) Stop() {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(500)
	}
}
