package clickhouse

import (
	"context"
	"errors"
	"sync"
	"time"

	"ethtrader/internal/config"
	"ethtrader/internal/domain"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"gitlab.com/nevasik7/alerting/logger"
)

var ErrWriterClosed = errors.New("clickhouse writer closed")

// QuoteRow is one quote_journal row
type QuoteRow struct {
	CreatedAt         time.Time
	QuoteID           string
	Kind              string
	ChainID           uint64
	TokenIn           string
	TokenOut          string
	AmountIn          string // decimal text, kept exact
	AmountOut         string
	Price             string
	Source            string
	FeeTier           uint32
	PriceImpact       string
	SimulationSuccess bool // convert to UInt8
}

func RowFromRecord(rec *domain.QuoteRecord) QuoteRow {
	return QuoteRow{
		CreatedAt:         rec.CreatedAt.UTC(),
		QuoteID:           rec.QuoteID,
		Kind:              string(rec.Kind),
		ChainID:           rec.ChainID,
		TokenIn:           rec.TokenIn,
		TokenOut:          rec.TokenOut,
		AmountIn:          rec.AmountIn,
		AmountOut:         rec.AmountOut,
		Price:             rec.Price,
		Source:            rec.Source,
		FeeTier:           rec.FeeTier,
		PriceImpact:       rec.PriceImpact,
		SimulationSuccess: rec.SimulationSuccess,
	}
}

// rowInserter sends one batch; the writer owns retries
type rowInserter interface {
	Insert(ctx context.Context, rows []QuoteRow) error
}

// Writer batches journal rows in the background and flushes them by size or interval
type Writer struct {
	log      logger.Logger
	inserter rowInserter
	cfg      config.ClickHouseWriterConfig

	mu     sync.RWMutex
	closed bool
	inCh   chan QuoteRow
	wg     sync.WaitGroup
}

func NewWriter(log logger.Logger, conn ch.Conn, cfg config.ClickHouseConfig) *Writer {
	return newWriter(log, &nativeInserter{conn: conn}, cfg.Writer)
}

func newWriter(log logger.Logger, inserter rowInserter, cfg config.ClickHouseWriterConfig) *Writer {
	// sane defaults
	if cfg.BatchMaxRows <= 0 {
		cfg.BatchMaxRows = 1000
	}
	if cfg.BatchMaxInterval <= 0 {
		cfg.BatchMaxInterval = 200 * time.Millisecond
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}

	w := &Writer{
		log:      log,
		inserter: inserter,
		cfg:      cfg,
		inCh:     make(chan QuoteRow, 8192),
	}

	w.wg.Add(1)
	go w.loop()

	return w
}

func (w *Writer) Name() string {
	return "clickhouse"
}

// Record enqueues the quote; the insert itself happens on the next flush
func (w *Writer) Record(ctx context.Context, rec *domain.QuoteRecord) error {
	return w.Enqueue(ctx, RowFromRecord(rec))
}

func (w *Writer) Enqueue(ctx context.Context, row QuoteRow) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		return ErrWriterClosed
	}

	select {
	case w.inCh <- row:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops intake, flushes what is buffered and waits for the loop to exit
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.inCh)
	}
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) loop() {
	defer w.wg.Done()

	batch := make([]QuoteRow, 0, w.cfg.BatchMaxRows)
	ticker := time.NewTicker(w.cfg.BatchMaxInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}

		if err := w.insertBatch(context.Background(), batch); err != nil {
			w.log.Errorf("Failed insert [%d] rows by batch to clickhouse, error=%v", len(batch), err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case row, ok := <-w.inCh:
			if !ok {
				flush()
				return
			}

			batch = append(batch, row)
			if len(batch) >= w.cfg.BatchMaxRows {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// insertBatch retries with exponential delay
func (w *Writer) insertBatch(ctx context.Context, rows []QuoteRow) error {
	backoff := w.cfg.RetryBackoff

	var lastErr error
	for attempt := 0; attempt <= w.cfg.MaxRetries; attempt++ {
		if lastErr = w.inserter.Insert(ctx, rows); lastErr == nil {
			return nil
		}

		if attempt == w.cfg.MaxRetries {
			break
		}
		w.log.Warnf("Clickhouse insert attempt %d failed, retry in %s: %v", attempt+1, backoff, lastErr)
		time.Sleep(backoff)
		backoff *= 2
	}

	return lastErr
}

type nativeInserter struct {
	conn ch.Conn
}

func (n *nativeInserter) Insert(ctx context.Context, rows []QuoteRow) error {
	batch, err := n.conn.PrepareBatch(ctx, insertQuoteJournal)
	if err != nil {
		return err
	}

	for i := range rows {
		r := &rows[i]
		var success uint8
		if r.SimulationSuccess {
			success = 1
		}

		if err = batch.Append(
			r.CreatedAt,
			r.QuoteID,
			r.Kind,
			r.ChainID,
			r.TokenIn,
			r.TokenOut,
			r.AmountIn,
			r.AmountOut,
			r.Price,
			r.Source,
			r.FeeTier,
			r.PriceImpact,
			success,
		); err != nil {
			_ = batch.Abort()
			return err
		}
	}

	return batch.Send()
}
