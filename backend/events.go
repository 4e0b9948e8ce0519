package main

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// EventBus publishes analytics events. At-most-once from the core's
// perspective: no acknowledgement is awaited and failures never reach
// gameplay.
type EventBus interface {
	Publish(kind, key string, fields map[string]any)
}

type KafkaBus struct {
	writer *kafka.Writer
}

func NewKafkaBus(brokers []string, topic string) *KafkaBus {
	return &KafkaBus{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		},
	}
}

// Publish sends the event on a goroutine so callers never block on the
// broker. The write error is logged and dropped.
func (b *KafkaBus) Publish(kind, key string, fields map[string]any) {
	fields["type"] = kind
	fields["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	value, err := json.Marshal(fields)
	if err != nil {
		log.Printf("[kafka] marshal %s event: %v", kind, err)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := b.writer.WriteMessages(ctx, kafka.Message{
			Key:   []byte(key),
			Value: value,
		})
		if err != nil {
			log.Printf("[kafka] publish %s event: %v", kind, err)
		}
	}()
}

func (b *KafkaBus) Close() error {
	return b.writer.Close()
}

type noopBus struct{}

func (noopBus) Publish(string, string, map[string]any) {}
