package publisher

import (
	"context"
	"strconv"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/repository"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const Topic = "storefront-reconciliation"

// kafka.Writerのうち使う部分
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OutboxPoller は未送信の照合イベントを定期的にKafkaへ流す。
// 送れなかったものは次のtickでまた拾う（at-least-once）。
type OutboxPoller struct {
	tick      time.Duration
	batchSize int
	repo      repository.ReconciliationRepository
	writer    MessageWriter
	log       *zap.Logger
}

func NewOutboxPoller(repo repository.ReconciliationRepository, log *zap.Logger, brokers ...string) *OutboxPoller {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  Topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return newOutboxPoller(repo, w, log)
}

func newOutboxPoller(repo repository.ReconciliationRepository, w MessageWriter, log *zap.Logger) *OutboxPoller {
	if log == nil {
		log = zap.NewNop()
	}
	return &OutboxPoller{
		tick:      time.Second * 5,
		batchSize: 100,
		repo:      repo,
		writer:    w,
		log:       log,
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.publishPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) Close() {
	if err := p.writer.Close(); err != nil {
		p.log.Warn("close kafka writer failed", zap.Error(err))
	}
}

func (p *OutboxPoller) publishPending(ctx context.Context) {
	events, err := p.repo.ListUnpublished(ctx, p.batchSize)
	if err != nil {
		p.log.Error("list unpublished reconciliation events failed", zap.Error(err))
		return
	}

	for _, ev := range events {
		if err := p.writer.WriteMessages(ctx, toMessage(ev)); err != nil {
			p.log.Warn("publish reconciliation event failed", zap.Int64("event_id", ev.ID), zap.Error(err))
			//順序を崩さないためここで止める
			return
		}
		if err := p.repo.MarkPublished(ctx, ev.ID); err != nil {
			p.log.Warn("mark reconciliation event published failed", zap.Int64("event_id", ev.ID), zap.Error(err))
			continue
		}
		p.log.Info("reconciliation event published",
			zap.Int64("event_id", ev.ID),
			zap.Int64("order_id", ev.OrderID),
			zap.String("type", string(ev.Type)),
		)
	}
}

func toMessage(ev model.ReconciliationEvent) kafka.Message {
	return kafka.Message{
		//注文ごとの順序を保つ
		Key:   []byte(strconv.FormatInt(ev.OrderID, 10)),
		Value: []byte(ev.Payload),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
			{Key: "event_id", Value: []byte(strconv.FormatInt(ev.ID, 10))},
		},
	}
}
