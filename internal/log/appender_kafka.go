package log

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaAppenderOpt configures a Kafka-backed log sink, for deployments that
// centralize agent logs the same way they centralize measurement output.
type KafkaAppenderOpt struct {
	Brokers      []string `mapstructure:"brokers"`
	Topic        string   `mapstructure:"topic"`
	BatchSize    int      `mapstructure:"batch_size"`
	BatchTimeout string   `mapstructure:"batch_timeout"`
}

// kafkaWriter adapts a *kafka.Writer to io.Writer so it can sit in a
// MultiWriter alongside the console/file/loki appenders.
type kafkaWriter struct {
	w *kafka.Writer
}

func (k *kafkaWriter) Write(p []byte) (int, error) {
	line := append([]byte(nil), p...)
	err := k.w.WriteMessages(context.Background(), kafka.Message{
		Value: line,
		Time:  time.Now(),
	})
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

func (m *MultiWriter) AddKafkaAppender(options KafkaAppenderOpt) *MultiWriter {
	batchSize := options.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	batchTimeout := 1 * time.Second
	if d, err := time.ParseDuration(options.BatchTimeout); err == nil && d > 0 {
		batchTimeout = d
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(options.Brokers...),
		Topic:        options.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    batchSize,
		BatchTimeout: batchTimeout,
		Async:        true,
	}
	m.writers = append(m.writers, &kafkaWriter{w: w})
	return m
}
