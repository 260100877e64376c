package dispatch

import (
	"context"
	"fmt"

	"github.com/numgate/numgate/pkg/money"
	"github.com/numgate/numgate/pkg/provider/sms"
)

// Gateway is the typed provider API the services consume. Every call is
// routed through the dispatcher with the correct queue kind; state-mutating
// actions always take the serialized write lane.
type Gateway struct {
	d *Dispatcher
}

// NewGateway wraps a dispatcher.
func NewGateway(d *Dispatcher) *Gateway {
	return &Gateway{d: d}
}

// LeaseNumber leases a number for (service, country[, operator]).
func (g *Gateway) LeaseNumber(ctx context.Context, service, country, operator string) (sms.Lease, error) {
	params := []sms.Param{
		{Key: "service", Value: service},
		{Key: "country", Value: country},
	}
	if operator != "" {
		params = append(params, sms.Param{Key: "operator", Value: operator})
	}
	res, err := g.d.Submit(ctx, Request{Action: sms.ActionGetNumber, Params: params, Kind: Write})
	if err != nil {
		return sms.Lease{}, err
	}
	lease, ok := res.(sms.Lease)
	if !ok {
		return sms.Lease{}, fmt.Errorf("unexpected result type %T for getNumber", res)
	}
	return lease, nil
}

// PollActivation fetches the current SMS delivery state for an activation.
func (g *Gateway) PollActivation(ctx context.Context, activationID string) (sms.Activation, error) {
	res, err := g.d.Submit(ctx, Request{
		Action: sms.ActionGetStatus,
		Params: []sms.Param{{Key: "id", Value: activationID}},
		Kind:   Read,
	})
	if err != nil {
		return sms.Activation{}, err
	}
	act, ok := res.(sms.Activation)
	if !ok {
		return sms.Activation{}, fmt.Errorf("unexpected result type %T for getStatus", res)
	}
	return act, nil
}

// CancelActivation tells the provider to cancel an activation.
func (g *Gateway) CancelActivation(ctx context.Context, activationID string) error {
	return g.setStatus(ctx, activationID, sms.SetStatusCancel)
}

// CompleteActivation acknowledges a finished activation provider-side.
func (g *Gateway) CompleteActivation(ctx context.Context, activationID string) error {
	return g.setStatus(ctx, activationID, sms.SetStatusComplete)
}

func (g *Gateway) setStatus(ctx context.Context, activationID, status string) error {
	_, err := g.d.Submit(ctx, Request{
		Action: sms.ActionSetStatus,
		Params: []sms.Param{
			{Key: "id", Value: activationID},
			{Key: "status", Value: status},
		},
		Kind: Write,
	})
	return err
}

// FetchPrices queries the provider's current price list for a country.
func (g *Gateway) FetchPrices(ctx context.Context, service, country string) (sms.PriceList, error) {
	res, err := g.d.Submit(ctx, Request{
		Action: sms.ActionGetPrices,
		Params: []sms.Param{
			{Key: "service", Value: service},
			{Key: "country", Value: country},
		},
		Kind: Read,
	})
	if err != nil {
		return nil, err
	}
	prices, ok := res.(sms.PriceList)
	if !ok {
		return nil, fmt.Errorf("unexpected result type %T for getPrices", res)
	}
	return prices, nil
}

// ProviderBalance fetches our account balance held with the provider.
func (g *Gateway) ProviderBalance(ctx context.Context) (money.Money, error) {
	res, err := g.d.Submit(ctx, Request{Action: sms.ActionGetBalance, Kind: Read})
	if err != nil {
		return money.Money{}, err
	}
	balance, ok := res.(money.Money)
	if !ok {
		return money.Money{}, fmt.Errorf("unexpected result type %T for getBalance", res)
	}
	return balance, nil
}
