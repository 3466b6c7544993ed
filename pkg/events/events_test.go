package events

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/z-wentao/slidecast/pkg/logger"
	"github.com/z-wentao/slidecast/pkg/models"
)

func TestFromJob(t *testing.T) {
	done := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ev := FromJob(&models.RenderJob{
		JobID:       "j",
		VideoID:     "v",
		Status:      models.StatusCompleted,
		URL:         "https://cdn/v.mp4",
		Duration:    2.5,
		CompletedAt: done,
	})
	if ev.JobID != "j" || ev.URL != "https://cdn/v.mp4" || !ev.OccurredAt.Equal(done) {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestKafkaPublisherSends(t *testing.T) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, cfg)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var ev Event
		if err := json.Unmarshal(val, &ev); err != nil {
			return err
		}
		if ev.JobID != "j" || ev.Status != models.StatusFailed || ev.Stage != "render" {
			return fmt.Errorf("unexpected event %+v", ev)
		}
		return nil
	})

	p := newKafkaPublisher(producer, "slidecast.jobs", logger.Nop())
	err := p.Publish(context.Background(), Event{JobID: "j", Status: models.StatusFailed, Stage: "render", Error: "boom"})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestKafkaPublisherError(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := newKafkaPublisher(producer, "slidecast.jobs", logger.Nop())
	if err := p.Publish(context.Background(), Event{JobID: "j"}); err == nil {
		t.Fatalf("want error")
	}
	p.Close()
}
