package service

import (
	"context"

	"ethtrader/internal/domain"
	"ethtrader/internal/metrics"

	"gitlab.com/nevasik7/alerting/logger"
)

// Recorder is a quote journal sink (ClickHouse writer, NATS publisher)
type Recorder interface {
	Name() string
	Record(ctx context.Context, rec *domain.QuoteRecord) error
}

// Journal fans a quote record out to every sink. Sink failures are logged and counted, never returned.
// A nil *Journal drops records.
type Journal struct {
	log     logger.Logger
	sinks   []Recorder
	metrics *metrics.Metrics
}

func NewJournal(log logger.Logger, m *metrics.Metrics, sinks ...Recorder) *Journal {
	active := make([]Recorder, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			active = append(active, s)
		}
	}
	return &Journal{log: log, sinks: active, metrics: m}
}

func (j *Journal) Record(ctx context.Context, rec *domain.QuoteRecord) {
	if j == nil || rec == nil {
		return
	}

	for _, s := range j.sinks {
		err := s.Record(ctx, rec)
		j.metrics.JournalWrite(s.Name(), err)
		if err != nil {
			j.log.Warnf("Failed to record quote %s to %s: %v", rec.QuoteID, s.Name(), err)
		}
	}
}
