package pricing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kasir-api/internal/pricing"
)

func TestCalculatorTotal(t *testing.T) {
	calc := &pricing.Calculator{}
	res, err := calc.Total(context.Background(), []pricing.LineItem{
		{Qty: 2, UnitPrice: 1.239},
		{Qty: 1, UnitPrice: 3.999},
	})
	require.NoError(t, err)
	require.Equal(t, int64(645), res.TotalMinor)
	require.Equal(t, pricing.DefaultMinorUnit, res.MinorUnit)
	require.Equal(t, 2, res.Items)
}

func TestCalculatorPreCancelledNeverComputes(t *testing.T) {
	ran := false
	calc := &pricing.Calculator{
		Compute: func(items []pricing.LineItem, scale pricing.MinorUnit) (pricing.TotalResult, error) {
			ran = true
			return pricing.Total(items, scale)
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := calc.Total(ctx, []pricing.LineItem{{Qty: 1, UnitPrice: 1}})
	require.ErrorIs(t, err, pricing.ErrCancelled)
	require.False(t, ran)
}

func TestCalculatorExpiredDeadlineMapsToTimeout(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	calc := &pricing.Calculator{}
	_, err := calc.Total(ctx, []pricing.LineItem{{Qty: 1, UnitPrice: 1}})
	require.ErrorIs(t, err, pricing.ErrTimeout)
}

func TestCalculatorTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	calc := &pricing.Calculator{
		Opts: pricing.Options{Timeout: 10 * time.Millisecond},
		Compute: func(items []pricing.LineItem, scale pricing.MinorUnit) (pricing.TotalResult, error) {
			<-release
			return pricing.Total(items, scale)
		},
	}
	_, err := calc.Total(context.Background(), []pricing.LineItem{{Qty: 1, UnitPrice: 1}})
	require.ErrorIs(t, err, pricing.ErrTimeout)
}

func TestCalculatorCancelledMidFlight(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	started := make(chan struct{})
	calc := &pricing.Calculator{
		Compute: func(items []pricing.LineItem, scale pricing.MinorUnit) (pricing.TotalResult, error) {
			close(started)
			<-release
			return pricing.Total(items, scale)
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := calc.Total(ctx, []pricing.LineItem{{Qty: 1, UnitPrice: 1}})
	require.ErrorIs(t, err, pricing.ErrCancelled)
}

func TestCalculatorZeroTimeoutMeansNoDeadline(t *testing.T) {
	calc := &pricing.Calculator{
		Opts: pricing.Options{Timeout: 0},
		Compute: func(items []pricing.LineItem, scale pricing.MinorUnit) (pricing.TotalResult, error) {
			time.Sleep(20 * time.Millisecond)
			return pricing.Total(items, scale)
		},
	}
	res, err := calc.Total(context.Background(), []pricing.LineItem{{Qty: 3, UnitPrice: 1}})
	require.NoError(t, err)
	require.Equal(t, int64(300), res.TotalMinor)
}

func TestCalculatorInvalidScaleRejectedBeforeRace(t *testing.T) {
	ran := false
	calc := &pricing.Calculator{
		Opts: pricing.Options{MinorUnit: 7},
		Compute: func(items []pricing.LineItem, scale pricing.MinorUnit) (pricing.TotalResult, error) {
			ran = true
			return pricing.Total(items, scale)
		},
	}
	_, err := calc.Total(context.Background(), []pricing.LineItem{{Qty: 1, UnitPrice: 1}})
	require.ErrorIs(t, err, pricing.ErrInvalidInput)
	require.False(t, ran)
}

func TestCalculatorPropagatesValidationError(t *testing.T) {
	calc := &pricing.Calculator{}
	_, err := calc.Total(context.Background(), []pricing.LineItem{{Qty: -1, UnitPrice: 1, Ref: "bad"}})
	require.ErrorIs(t, err, pricing.ErrInvalidInput)
	require.Contains(t, err.Error(), `item "bad"`)
}
