package database

import (
	"fmt"
	"log"
	"time"

	"campus_chat_service/pkg/logger"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// NewKafkaWriterWithRetry dial the brokers until one answers, then build the topic writer
func NewKafkaWriterWithRetry(k KafkaConnection) (*kafka.Writer, error) {
	if len(k.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}

	var err error
	for attempt := 1; attempt <= k.RetryCount; attempt++ {
		var conn *kafka.Conn
		conn, err = kafka.Dial("tcp", k.Brokers[0])
		if err == nil {
			_ = conn.Close()
			log.Printf("Kafka 連線成功 (嘗試 %d 次)", attempt)
			return &kafka.Writer{
				Addr:                   kafka.TCP(k.Brokers...),
				Topic:                  k.Topic,
				Balancer:               &kafka.Hash{},
				AllowAutoTopicCreation: true,
				Async:                  true,
				Completion: func(messages []kafka.Message, err error) {
					if err != nil {
						logger.Log.Error("kafka async write failed", zap.Int("messages", len(messages)), zap.Error(err))
					}
				},
			}, nil
		}

		log.Printf("Kafka 連線失敗 (嘗試 %d/%d): %v", attempt, k.RetryCount, err)
		time.Sleep(k.RetryInterval * time.Second)
	}

	return nil, fmt.Errorf("無法建立 Kafka Writer，經過 %d 次嘗試: %v", k.RetryCount, err)
}
