package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ResultStatus classifies how a single broker fared during a dispatch.
type ResultStatus string

const (
	ResultOK       ResultStatus = "ok"
	ResultSkipped  ResultStatus = "skipped"
	ResultExcluded ResultStatus = "excluded"
	ResultFailed   ResultStatus = "failed"
)

// BrokerResult is the per-broker result of one dispatch.
type BrokerResult struct {
	Broker string
	Status ResultStatus
	Total  decimal.Decimal
	Err    error
}

// Outcome aggregates every broker's result for one dispatch.
type Outcome struct {
	OrderID  string
	Phase    Phase
	Total    decimal.Decimal
	Results  []BrokerResult
	Started  time.Time
	Finished time.Time
}

// Succeeded returns the brokers that completed without error.
func (o *Outcome) Succeeded() []string {
	return o.brokersWith(ResultOK)
}

// Failed returns the brokers whose login, query or transaction failed.
func (o *Outcome) Failed() []string {
	return o.brokersWith(ResultFailed)
}

// Result returns the result recorded for broker, if any.
func (o *Outcome) Result(broker string) (BrokerResult, bool) {
	for _, r := range o.Results {
		if r.Broker == broker {
			return r, true
		}
	}
	return BrokerResult{}, false
}

func (o *Outcome) brokersWith(status ResultStatus) []string {
	var out []string
	for _, r := range o.Results {
		if r.Status == status {
			out = append(out, r.Broker)
		}
	}
	return out
}
