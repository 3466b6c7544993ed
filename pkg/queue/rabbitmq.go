package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/z-wentao/slidecast/pkg/logger"
	"github.com/z-wentao/slidecast/pkg/models"
)

// RabbitMQQueue RabbitMQ 队列
// 发布和消费各用一条连接；所有 Worker 共享同一个 deliveries channel，
// 并发度由 QoS prefetch 控制，手动 Ack/Nack
type RabbitMQQueue struct {
	url       string
	queueName string
	prefetch  int
	log       *logger.Logger

	closed chan struct{}
	once   sync.Once

	publishMu   sync.Mutex
	publishConn *amqp.Connection
	publishCh   *amqp.Channel

	consumeConn *amqp.Connection
	consumeCh   *amqp.Channel
	deliveries  <-chan amqp.Delivery

	// amqp Channel 不是并发安全的
	ackMu sync.Mutex
}

// NewRabbitMQQueue prefetch 一般等于 Worker 数量
func NewRabbitMQQueue(url, queueName string, prefetch int, log *logger.Logger) (*RabbitMQQueue, error) {
	if prefetch <= 0 {
		prefetch = 1
	}
	rq := &RabbitMQQueue{
		url:       url,
		queueName: queueName,
		prefetch:  prefetch,
		log:       log.With("service", "RabbitMQQueue", "queue", queueName),
		closed:    make(chan struct{}),
	}

	if err := rq.setupPublisher(); err != nil {
		return nil, fmt.Errorf("初始化发布者失败: %w", err)
	}
	if err := rq.setupConsumer(); err != nil {
		rq.closePublisher()
		return nil, fmt.Errorf("初始化消费者失败: %w", err)
	}

	rq.log.Info("RabbitMQ 队列初始化成功", "prefetch", prefetch)
	return rq, nil
}

// declare 声明持久化队列（幂等）
func (rq *RabbitMQQueue) declare(ch *amqp.Channel) error {
	_, err := ch.QueueDeclare(
		rq.queueName,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	return err
}

func (rq *RabbitMQQueue) open() (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(rq.url)
	if err != nil {
		return nil, nil, fmt.Errorf("连接失败: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("创建 Channel 失败: %w", err)
	}
	if err := rq.declare(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("声明队列失败: %w", err)
	}
	return conn, ch, nil
}

func (rq *RabbitMQQueue) setupPublisher() error {
	conn, ch, err := rq.open()
	if err != nil {
		return err
	}
	rq.publishConn, rq.publishCh = conn, ch
	return nil
}

func (rq *RabbitMQQueue) setupConsumer() error {
	conn, ch, err := rq.open()
	if err != nil {
		return err
	}
	if err := ch.Qos(rq.prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("设置 QoS 失败: %w", err)
	}
	deliveries, err := ch.Consume(
		rq.queueName,
		"slidecast-worker",
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("启动消费失败: %w", err)
	}
	rq.consumeConn, rq.consumeCh, rq.deliveries = conn, ch, deliveries
	return nil
}

func (rq *RabbitMQQueue) Enqueue(ctx context.Context, job *models.RenderJob) error {
	body, err := json.Marshal(toMessage(job))
	if err != nil {
		return fmt.Errorf("序列化任务失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rq.publishMu.Lock()
	defer rq.publishMu.Unlock()
	err = rq.publishCh.PublishWithContext(ctx,
		"", // 默认 exchange
		rq.queueName,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    job.JobID,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("发布消息失败: %w", err)
	}
	return nil
}

func (rq *RabbitMQQueue) Dequeue(ctx context.Context) (*models.RenderJob, error) {
	for {
		select {
		case <-rq.closed:
			return nil, ErrClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		case d, ok := <-rq.deliveries:
			if !ok {
				return nil, ErrClosed
			}
			var msg message
			if err := json.Unmarshal(d.Body, &msg); err != nil || msg.JobID == "" {
				// 无法解析的消息直接丢弃，不重新入队
				rq.log.Warn("丢弃无效消息", "delivery_tag", d.DeliveryTag, "error", err)
				_ = rq.nack(d.DeliveryTag, false)
				continue
			}
			job := msg.job()
			job.DeliveryTag = d.DeliveryTag
			job.RabbitMQDelivery = d.DeliveryTag
			return job, nil
		}
	}
}

func (rq *RabbitMQQueue) Ack(job *models.RenderJob) error {
	tag, ok := job.RabbitMQDelivery.(uint64)
	if !ok {
		return nil
	}
	rq.ackMu.Lock()
	defer rq.ackMu.Unlock()
	return rq.consumeCh.Ack(tag, false)
}

func (rq *RabbitMQQueue) Nack(job *models.RenderJob, requeue bool) error {
	tag, ok := job.RabbitMQDelivery.(uint64)
	if !ok {
		return nil
	}
	return rq.nack(tag, requeue)
}

func (rq *RabbitMQQueue) nack(tag uint64, requeue bool) error {
	rq.ackMu.Lock()
	defer rq.ackMu.Unlock()
	return rq.consumeCh.Nack(tag, false, requeue)
}

func (rq *RabbitMQQueue) Close() error {
	rq.once.Do(func() {
		close(rq.closed)
		if rq.consumeCh != nil {
			rq.consumeCh.Close()
		}
		if rq.consumeConn != nil {
			rq.consumeConn.Close()
		}
		rq.closePublisher()
		rq.log.Info("RabbitMQ 队列已关闭")
	})
	return nil
}

func (rq *RabbitMQQueue) closePublisher() {
	if rq.publishCh != nil {
		rq.publishCh.Close()
	}
	if rq.publishConn != nil {
		rq.publishConn.Close()
	}
}

// Depth 队列中待处理的消息数和消费者数
func (rq *RabbitMQQueue) Depth() (messages, consumers int, err error) {
	rq.publishMu.Lock()
	defer rq.publishMu.Unlock()
	q, err := rq.publishCh.QueueInspect(rq.queueName)
	if err != nil {
		return 0, 0, err
	}
	return q.Messages, q.Consumers, nil
}
