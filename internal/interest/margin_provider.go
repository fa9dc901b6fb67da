package interest

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/trading-engine/internal/actorkit"
	"github.com/atlas-desktop/trading-engine/pkg/types"
)

// ExchangeRateSource fetches a live margin interest rate from an
// exchange; it is the capability the provider's actor calls out to, kept
// narrow so tests can substitute a stub.
type ExchangeRateSource interface {
	FetchInterestRate(ctx context.Context, exchange types.Exchange, asset string) (Rate, error)
}

type getRateRequest struct {
	ctx      context.Context
	exchange types.Exchange
	asset    string
	source   ExchangeRateSource
	reply    chan getRateReply
}

type getRateReply struct {
	rate Rate
	err  error
}

func (r getRateRequest) Handle(_ context.Context) {
	getRateCounter.WithLabelValues(string(r.exchange), r.asset).Inc()
	rate, err := r.source.FetchInterestRate(r.ctx, r.exchange, r.asset)
	r.reply <- getRateReply{rate: rate, err: err}
}

// MarginInterestRateProvider runs a single actor that serializes live
// rate lookups against an exchange, mirroring the one-mailbox-per-
// exchange-manager shape used for every other exchange-facing capability
// in the engine.
type MarginInterestRateProvider struct {
	actor  *actorkit.Actor
	source ExchangeRateSource
}

// NewMarginInterestRateProvider starts the provider's actor.
func NewMarginInterestRateProvider(source ExchangeRateSource, logger *zap.Logger) *MarginInterestRateProvider {
	p := &MarginInterestRateProvider{
		actor:  actorkit.NewActor("margin-interest-rate-provider", 64, logger),
		source: source,
	}
	p.actor.Start()
	return p
}

func (p *MarginInterestRateProvider) GetInterestRate(ctx context.Context, exchange types.Exchange, asset string) (Rate, error) {
	reply := make(chan getRateReply, 1)
	req := getRateRequest{ctx: ctx, exchange: exchange, asset: asset, source: p.source, reply: reply}
	if !p.actor.Send(req) {
		return Rate{}, fmt.Errorf("interest: provider actor stopped")
	}
	select {
	case r := <-reply:
		return r.rate, r.err
	case <-ctx.Done():
		return Rate{}, ctx.Err()
	}
}

func (p *MarginInterestRateProvider) InterestFeesSince(ctx context.Context, exchange types.Exchange, order types.OrderDetail) (decimal.Decimal, error) {
	return baseInterestFees(ctx, p, exchange, order, false)
}

func (p *MarginInterestRateProvider) QuoteInterestFeesSince(ctx context.Context, exchange types.Exchange, order types.OrderDetail) (decimal.Decimal, error) {
	return baseInterestFees(ctx, p, exchange, order, true)
}

// Stop shuts down the provider's actor.
func (p *MarginInterestRateProvider) Stop() { p.actor.Stop() }

var _ Provider = (*MarginInterestRateProvider)(nil)
