//go:build franz

package kafka

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	berr "github.com/next-trace/scg-placeholder-bus/contract/errors"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Concrete franz-go based constructor, writer and reader wrappers.

type Config struct {
	Brokers     []string
	TLS         *tls.Config
	Acks        kgo.Acks
	Idempotent  bool
	ClientID    string
	Compression []kgo.CompressionCodec
}

func (c Config) baseOpts() []kgo.Opt {
	opts := []kgo.Opt{kgo.SeedBrokers(c.Brokers...)}
	if c.ClientID != "" {
		opts = append(opts, kgo.ClientID(c.ClientID))
	}

	if c.TLS != nil {
		opts = append(opts, kgo.DialTLSConfig(c.TLS))
	}

	return opts
}

type kgoWriter struct{ cl *kgo.Client }

func (w kgoWriter) Write(ctx context.Context, topic string, key, value []byte, headers map[string]string) error {
	rec := &kgo.Record{Topic: topic, Key: key, Value: value}
	if len(headers) > 0 {
		rec.Headers = make([]kgo.RecordHeader, 0, len(headers))
		for k, v := range headers {
			rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
		}
	}

	return w.cl.ProduceSync(ctx, rec).FirstErr()
}

// kgoReader opens a dedicated consumer client per subscription so every
// subscriber sees every record published after it started. Offsets are
// resolved by timestamp, so records written while the client is still
// joining are not skipped.
type kgoReader struct{ cfg Config }

func (r kgoReader) Consume(topics []string, deliver func(Record)) (func() error, error) {
	opts := append(r.cfg.baseOpts(),
		kgo.ConsumeTopics(topics...),
		kgo.ConsumeResetOffset(kgo.NewOffset().AfterMilli(time.Now().UnixMilli())),
	)

	cl, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, err
	}

	return runPoller(kgoPoller{cl: cl}, deliver), nil
}

type kgoPoller struct{ cl *kgo.Client }

func (p kgoPoller) Poll(ctx context.Context) ([]Record, bool) {
	fetches := p.cl.PollFetches(ctx)
	if fetches.IsClientClosed() || ctx.Err() != nil {
		return nil, false
	}

	var out []Record

	fetches.EachRecord(func(rec *kgo.Record) {
		out = append(out, recordFrom(rec))
	})

	return out, true
}

func (p kgoPoller) Close() { p.cl.Close() }

func recordFrom(rec *kgo.Record) Record {
	h := make(map[string]string, len(rec.Headers))
	for _, kv := range rec.Headers {
		h[kv.Key] = string(kv.Value)
	}

	return Record{Topic: rec.Topic, Key: rec.Key, Value: rec.Value, Headers: h}
}

// NewWithKgo builds a franz-go client based Adapter. The returned cleanup should be called to close the producer.
func NewWithKgo(cfg Config) (*Adapter, func(), error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil, fmt.Errorf("kafka: brokers required: %w", berr.ErrNotConnected)
	}

	opts := cfg.baseOpts()
	if !cfg.Idempotent {
		opts = append(opts, kgo.DisableIdempotentWrite())
	}

	if len(cfg.Compression) > 0 {
		opts = append(opts, kgo.ProducerBatchCompression(cfg.Compression...))
	}

	if cfg.Acks != (kgo.Acks{}) {
		opts = append(opts, kgo.RequiredAcks(cfg.Acks))
	}

	cl, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka client init: %w", errors.Join(berr.ErrNotConnected, err))
	}

	ad := New(kgoWriter{cl: cl}, kgoReader{cfg: cfg})
	cleanup := func() { cl.Close() }

	return ad, cleanup, nil
}
