package queue

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/attend/internal/models"
)

// FrameHandler processes one decoded frame task. A returned error naks the
// message for redelivery.
type FrameHandler func(ctx context.Context, task models.FrameTask) error

// AttendanceHandler processes one decoded attendance event.
type AttendanceHandler func(ctx context.Context, ev models.AttendanceEvent) error

// errMalformed marks payloads that will never decode; they are terminated
// instead of redelivered.
var errMalformed = errors.New("malformed payload")

// settler is the acknowledgement half of jetstream.Msg.
type settler interface {
	Ack() error
	Nak() error
	Term() error
}

func settle(msg settler, err error) {
	switch {
	case err == nil:
		_ = msg.Ack()
	case errors.Is(err, errMalformed):
		_ = msg.Term()
	default:
		_ = msg.Nak()
	}
}

type Consumer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewConsumer(natsURL string) (*Consumer, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	return &Consumer{nc: nc, js: js}, nil
}

func (c *Consumer) durable(ctx context.Context, streamName string, cfg jetstream.ConsumerConfig) (jetstream.Consumer, error) {
	stream, err := c.js.Stream(ctx, streamName)
	if err != nil {
		return nil, fmt.Errorf("get stream %s: %w", streamName, err)
	}
	cfg.Durable = cfg.Name
	cfg.AckPolicy = jetstream.AckExplicitPolicy
	cons, err := stream.CreateOrUpdateConsumer(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create consumer %s: %w", cfg.Name, err)
	}
	return cons, nil
}

// fetch pulls batches until ctx is done and hands every message to deliver.
// deliver returns false to stop.
func fetch(ctx context.Context, cons jetstream.Consumer, batchSize int, what string, deliver func(jetstream.Msg) bool) {
	for ctx.Err() == nil {
		batch, err := cons.Fetch(batchSize, jetstream.FetchMaxWait(5*time.Second))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("fetch error", "stream", what, "error", err)
			time.Sleep(time.Second)
			continue
		}
		for msg := range batch.Messages() {
			if !deliver(msg) {
				return
			}
		}
	}
}

type frameJob struct {
	msg  jetstream.Msg
	task models.FrameTask
}

// laneFor picks the worker that owns a camera. Every frame of one camera
// goes through the same lane, in stream order.
func laneFor(cameraID uuid.UUID, lanes int) int {
	h := fnv.New32a()
	_, _ = h.Write(cameraID[:])
	return int(h.Sum32() % uint32(lanes))
}

// ConsumeFrames consumes frame tasks from the FRAMES stream with workerCount
// goroutines. Tasks are sharded by camera so one camera never runs on two
// workers at once.
func (c *Consumer) ConsumeFrames(ctx context.Context, consumerName string, handle FrameHandler, workerCount int) error {
	if workerCount < 1 {
		workerCount = 1
	}
	cons, err := c.durable(ctx, FramesStreamName, jetstream.ConsumerConfig{
		Name:          consumerName,
		AckWait:       30 * time.Second,
		MaxDeliver:    3,
		FilterSubject: FramesSubjectBase + ".>",
	})
	if err != nil {
		return err
	}

	lanes := make([]chan frameJob, workerCount)
	for i := range lanes {
		lanes[i] = make(chan frameJob, 2)
		go func(workerID int, jobs <-chan frameJob) {
			for job := range jobs {
				err := handle(ctx, job.task)
				if err != nil {
					slog.Error("process frame", "worker", workerID, "camera_id", job.task.CameraID, "error", err)
				}
				settle(job.msg, err)
			}
		}(i, lanes[i])
	}

	go func() {
		defer func() {
			for _, l := range lanes {
				close(l)
			}
		}()
		fetch(ctx, cons, workerCount, FramesStreamName, func(msg jetstream.Msg) bool {
			task, err := DecodeFrameTask(msg.Data())
			if err != nil {
				slog.Error("decode frame task", "subject", msg.Subject(), "error", err)
				settle(msg, fmt.Errorf("%w: %v", errMalformed, err))
				return true
			}
			select {
			case lanes[laneFor(task.CameraID, len(lanes))] <- frameJob{msg: msg, task: task}:
				return true
			case <-ctx.Done():
				return false
			}
		})
	}()

	slog.Info("frame consumer started", "consumer", consumerName, "workers", workerCount)
	return nil
}

// ConsumeAttendance consumes attendance events in order, e.g. for websocket
// broadcast by the API. Only events published after the consumer is created
// are delivered.
func (c *Consumer) ConsumeAttendance(ctx context.Context, consumerName string, handle AttendanceHandler) error {
	cons, err := c.durable(ctx, AttendanceStreamName, jetstream.ConsumerConfig{
		Name:          consumerName,
		AckWait:       10 * time.Second,
		MaxDeliver:    3,
		FilterSubject: AttendanceSubjectBase + ".>",
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return err
	}

	go fetch(ctx, cons, 10, AttendanceStreamName, func(msg jetstream.Msg) bool {
		settle(msg, handleAttendance(ctx, msg.Data(), handle))
		return true
	})

	slog.Info("attendance consumer started", "consumer", consumerName)
	return nil
}

func handleAttendance(ctx context.Context, data []byte, handle AttendanceHandler) error {
	ev, err := DecodeAttendanceEvent(data)
	if err != nil {
		slog.Error("decode attendance event", "error", err)
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	if err := handle(ctx, ev); err != nil {
		slog.Error("process attendance event", "person", ev.Record.PersonName, "error", err)
		return err
	}
	return nil
}

func (c *Consumer) Close() {
	c.nc.Close()
}
