package protocol

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantessence/discretionary-engine/internal/domain"
	"github.com/quantessence/discretionary-engine/internal/exchange"
)

// fakeExchange serves a fixed price and streams a scripted tick sequence.
// After the script it blocks until cancellation unless streamErr is set, in
// which case it returns the error (or nil, simulating a closed stream).
type fakeExchange struct {
	price     float64
	ticks     []float64
	finish    bool
	streamErr error
}

func (f *fakeExchange) Name() string { return "fake" }

func (f *fakeExchange) TotalBalance(ctx context.Context) (float64, error) { return 0, nil }

func (f *fakeExchange) Price(ctx context.Context, asset string) (float64, error) {
	return f.price, nil
}

func (f *fakeExchange) QuantityPrecision(ctx context.Context, asset string) (int, error) {
	return 3, nil
}

func (f *fakeExchange) SubmitMarketOrder(ctx context.Context, symbol string, side domain.Side, quantity float64) (int64, error) {
	return 1, nil
}

func (f *fakeExchange) PollOrder(ctx context.Context, symbol string, orderID int64) (exchange.OrderPoll, error) {
	return exchange.OrderPoll{}, nil
}

func (f *fakeExchange) StreamMarkPrice(ctx context.Context, symbol string, out chan<- exchange.PricePoint) error {
	for _, p := range f.ticks {
		select {
		case out <- exchange.PricePoint{Price: p}:
		case <-ctx.Done():
			return nil
		}
	}
	if f.finish {
		return f.streamErr
	}
	<-ctx.Done()
	return nil
}

var _ exchange.Client = (*fakeExchange)(nil)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseTrailingStop(t *testing.T) {
	p, err := Parse("ts-p0.5", &fakeExchange{price: 100}, testLogger())
	require.NoError(t, err)

	assert.Equal(t, "ts-p0.5", p.ID())
	assert.Equal(t, domain.ProtocolTypeMomentum, p.Subtype())

	ts, ok := p.(*TrailingStop)
	require.True(t, ok)
	assert.InDelta(t, 0.005, ts.percent, 1e-12)
}

func TestParseIsCaseInsensitive(t *testing.T) {
	p, err := Parse("TS-P0.5", &fakeExchange{price: 100}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "ts-p0.5", p.ID())

	ts, ok := p.(*TrailingStop)
	require.True(t, ok)
	assert.InDelta(t, 0.005, ts.percent, 1e-12)

	_, err = ParseAll([]string{"ts-p0.5", "TS-P0.5"}, &fakeExchange{}, testLogger())
	require.Error(t, err)
}

func TestParseRejectsUnknownName(t *testing.T) {
	_, err := Parse("sar-p2", &fakeExchange{}, testLogger())
	require.ErrorIs(t, err, domain.ErrUnknownProtocol)
}

func TestParseRejectsMalformedParams(t *testing.T) {
	for _, spec := range []string{"ts-p", "ts-0.5", "ts-px"} {
		_, err := Parse(spec, &fakeExchange{}, testLogger())
		assert.Error(t, err, "spec %q", spec)
	}
}

func TestParseRejectsOutOfRangePercent(t *testing.T) {
	for _, spec := range []string{"ts-p0", "ts-p100", "ts-p-3"} {
		_, err := Parse(spec, &fakeExchange{}, testLogger())
		assert.Error(t, err, "spec %q", spec)
	}
}

func TestParseAllRejectsDuplicates(t *testing.T) {
	_, err := ParseAll([]string{"ts-p0.5", "ts-p0.5"}, &fakeExchange{}, testLogger())
	require.Error(t, err)
}

func TestParseAllRequiresAtLeastOne(t *testing.T) {
	_, err := ParseAll(nil, &fakeExchange{}, testLogger())
	require.ErrorIs(t, err, domain.ErrNoProtocols)

	_, err = ParseAll([]string{"  ", ""}, &fakeExchange{}, testLogger())
	require.ErrorIs(t, err, domain.ErrNoProtocols)
}

func TestParseAllDistinctSpecs(t *testing.T) {
	protocols, err := ParseAll([]string{"ts-p0.5", "ts-p1"}, &fakeExchange{}, testLogger())
	require.NoError(t, err)
	require.Len(t, protocols, 2)
	assert.Equal(t, "ts-p0.5", protocols[0].ID())
	assert.Equal(t, "ts-p1", protocols[1].ID())
}

func TestCountSubtypes(t *testing.T) {
	protocols, err := ParseAll([]string{"ts-p0.5", "ts-p1", "ts-p2"}, &fakeExchange{}, testLogger())
	require.NoError(t, err)

	counts := CountSubtypes(protocols)
	assert.Equal(t, map[domain.ProtocolType]int{domain.ProtocolTypeMomentum: 3}, counts)
}
