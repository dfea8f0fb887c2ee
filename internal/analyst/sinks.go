package analyst

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"fxanalyst/internal/notification"
	"fxanalyst/internal/store/file"
	redisstore "fxanalyst/internal/store/redis"
	"fxanalyst/internal/store/sqlite"
)

// Sink receives every cycle record.
type Sink interface {
	Name() string
	Write(ctx context.Context, rec Record) error
}

// FileSink writes one JSON file per record. A record for an already written
// timestamp is skipped.
type FileSink struct {
	W *file.RecordWriter
}

func (s FileSink) Name() string { return "file" }

func (s FileSink) Write(_ context.Context, rec Record) error {
	path, created, err := s.W.Write(rec.Symbol, rec.Interval, rec.TS, rec)
	if err != nil {
		return err
	}
	if !created {
		slog.Info("record already written, skipping", "path", path)
	}
	return nil
}

// JournalSink appends records to the SQLite decision journal.
type JournalSink struct {
	DB *sqlite.DB
}

func (s JournalSink) Name() string { return "sqlite" }

func (s JournalSink) Write(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	inserted, err := s.DB.AppendDecision(ctx, sqlite.JournalEntry{
		ID:       rec.ID,
		Symbol:   rec.Symbol,
		Interval: rec.Interval,
		TS:       rec.TS,
		Action:   string(rec.Decision.Action),
		Approved: rec.Decision.Approved,
		Reasons:  rec.Decision.Reasons,
		Payload:  payload,
	})
	if err != nil {
		return err
	}
	if !inserted {
		slog.Info("journal already has a decision for this timestamp", "symbol", rec.Symbol, "ts", rec.TS)
	}
	return nil
}

// PublishSink publishes records on Redis Pub/Sub and caches the latest one.
type PublishSink struct {
	P *redisstore.Publisher
}

func (s PublishSink) Name() string { return "redis" }

func (s PublishSink) Write(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.P.Publish(ctx, rec.Symbol, payload)
}

// Broadcaster fans a payload out to live stream clients.
type Broadcaster interface {
	Publish(symbol string, payload []byte)
}

// StreamSink pushes records to the WebSocket stream.
type StreamSink struct {
	B Broadcaster
}

func (s StreamSink) Name() string { return "stream" }

func (s StreamSink) Write(_ context.Context, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	s.B.Publish(rec.Symbol, payload)
	return nil
}

// NotifySink alerts on approved decisions and on internal errors.
type NotifySink struct {
	N notification.Notifier
}

func (s NotifySink) Name() string { return "notify" }

func (s NotifySink) Write(ctx context.Context, rec Record) error {
	var alert notification.Alert
	switch {
	case rec.Decision.Approved:
		d := rec.Decision
		alert = notification.TradeAlert(notification.Trade{
			Symbol:      rec.Symbol,
			Action:      string(d.Action),
			Entry:       d.Entry,
			StopLoss:    d.StopLoss,
			TakeProfit:  d.TakeProfit,
			RiskReward:  d.RiskReward,
			Confidence:  rec.Signal.ConfidenceScore,
			Probability: rec.Signal.AIProbability,
			TraceID:     rec.TraceID,
		})
	case rec.Outcome() == ReasonInternalError:
		alert = notification.Alert{
			Level:   notification.AlertCritical,
			Title:   fmt.Sprintf("%s cycle failed", rec.Symbol),
			Message: rec.Error,
		}
	default:
		return nil
	}
	return s.N.Send(ctx, alert)
}
