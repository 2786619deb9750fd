// Package command parses the text commands accepted by the CLI:
//
//	holdings <brokers> [not <brokers>]
//	<buy|sell> <amount> <ticker> <brokers> [not <brokers>] <true|false>
//
// where <brokers> is "all", "day1" or a comma-separated list of names or
// aliases. The final boolean selects dry-run mode.
package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"autorsa/internal/broker"
	"autorsa/internal/domain"
)

// Usage is the one-screen grammar summary.
const Usage = `usage:
  holdings <brokers> [not <brokers>]
  <buy|sell> <amount> <ticker> <brokers> [not <brokers>] <dry: true|false>

<brokers> is "all", "day1" or a comma-separated list, e.g. "fidelity,rh".`

// ErrUsage wraps every parse failure.
var ErrUsage = errors.New("invalid command")

// Command is a parsed order and the phase to run it in.
type Command struct {
	Phase domain.Phase
	Order *domain.Order
}

// Options controls broker-set expansion.
type Options struct {
	// All is the expansion of "all". Nil means broker.Supported.
	All []string
}

// Parse turns command-line words into a Command. Broker names are kept as
// typed; support is checked later by order validation.
func Parse(args []string, opts Options) (*Command, error) {
	if len(args) == 0 {
		return nil, usageErr("missing command")
	}

	switch verb := strings.ToLower(args[0]); verb {
	case "holdings":
		brokers, excluded, rest, err := parseBrokerSets(args[1:], opts)
		if err != nil {
			return nil, err
		}
		if len(rest) != 0 {
			return nil, usageErr("unexpected %q after broker list", strings.Join(rest, " "))
		}
		o := domain.NewHoldingsOrder(brokers)
		o.Exclude(excluded...)
		return &Command{Phase: domain.PhaseHoldings, Order: o}, nil

	case string(domain.ActionBuy), string(domain.ActionSell):
		if len(args) < 5 {
			return nil, usageErr("%s needs <amount> <ticker> <brokers> <dry>", verb)
		}
		amount, err := decimal.NewFromString(args[1])
		if err != nil {
			return nil, usageErr("amount %q is not a number", args[1])
		}
		ticker := args[2]
		brokers, excluded, rest, err := parseBrokerSets(args[3:], opts)
		if err != nil {
			return nil, err
		}
		if len(rest) != 1 {
			return nil, usageErr("expected a single true|false after the broker list")
		}
		dry, err := strconv.ParseBool(rest[0])
		if err != nil {
			return nil, usageErr("dry must be true or false, got %q", rest[0])
		}
		o := domain.NewOrder(domain.Action(verb), amount, ticker, brokers, dry)
		o.Exclude(excluded...)
		return &Command{Phase: domain.PhaseTransaction, Order: o}, nil

	default:
		return nil, usageErr("unknown command %q", args[0])
	}
}

// parseBrokerSets consumes "<brokers> [not <brokers>]" and returns the
// remaining words.
func parseBrokerSets(args []string, opts Options) (brokers, excluded, rest []string, err error) {
	if len(args) == 0 {
		return nil, nil, nil, usageErr("missing broker list")
	}
	if brokers, err = expand(args[0], opts); err != nil {
		return nil, nil, nil, err
	}
	rest = args[1:]
	if len(rest) > 0 && strings.EqualFold(rest[0], "not") {
		if len(rest) < 2 {
			return nil, nil, nil, usageErr("missing broker list after \"not\"")
		}
		if excluded, err = expand(rest[1], opts); err != nil {
			return nil, nil, nil, err
		}
		rest = rest[2:]
	}
	return brokers, excluded, rest, nil
}

func expand(word string, opts Options) ([]string, error) {
	switch strings.ToLower(word) {
	case "all":
		if opts.All != nil {
			return append([]string(nil), opts.All...), nil
		}
		return append([]string(nil), broker.Supported...), nil
	case "day1":
		return append([]string(nil), broker.Day1...), nil
	}

	var out []string
	for _, part := range strings.Split(word, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, usageErr("empty broker list %q", word)
	}
	return out, nil
}

func usageErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUsage, fmt.Sprintf(format, args...))
}
