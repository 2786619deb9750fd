// Package broker defines the capability contract every brokerage integration
// exposes to the dispatcher, the static descriptor table that binds broker
// names to that contract, and the built-in Alpaca and paper backends.
package broker

import (
	"context"
	"errors"
	"fmt"

	"autorsa/internal/domain"
	"autorsa/internal/report"
)

// ErrNotRegistered is returned for a supported broker name that has no
// integration registered.
var ErrNotRegistered = errors.New("no integration registered")

// Convention describes which arguments a broker's login step takes.
type Convention int

const (
	// ConventionNone: login takes no arguments.
	ConventionNone Convention = iota
	// ConventionNotifier: login receives the report sink.
	ConventionNotifier
	// ConventionContainerNotifier: login receives the container flag and the
	// report sink.
	ConventionContainerNotifier
	// ConventionContainer: login receives the container flag only.
	ConventionContainer
)

func (c Convention) String() string {
	switch c {
	case ConventionNone:
		return "none"
	case ConventionNotifier:
		return "notifier"
	case ConventionContainerNotifier:
		return "container+notifier"
	case ConventionContainer:
		return "container"
	default:
		return fmt.Sprintf("Convention(%d)", int(c))
	}
}

// LoginEnv carries the explicit parameters a login step may need. Fields the
// broker's convention does not ask for are left zero.
type LoginEnv struct {
	Notifier  report.Sink
	Container bool
}

// Env builds the LoginEnv for convention c.
func (c Convention) Env(notifier report.Sink, container bool) LoginEnv {
	switch c {
	case ConventionNotifier:
		return LoginEnv{Notifier: notifier}
	case ConventionContainerNotifier:
		return LoginEnv{Notifier: notifier, Container: container}
	case ConventionContainer:
		return LoginEnv{Container: container}
	default:
		return LoginEnv{}
	}
}

// LoginFunc authenticates and returns a session. A nil session with a nil
// error means the broker could not log in.
type LoginFunc func(ctx context.Context, env LoginEnv) (domain.Session, error)

// HoldingsFunc queries holdings for a logged-in session, populating its
// account totals and reporting them.
type HoldingsFunc func(ctx context.Context, s domain.Session, sink report.Sink) error

// TransactionFunc submits the order through a logged-in session.
type TransactionFunc func(ctx context.Context, s domain.Session, o *domain.Order, sink report.Sink) error

// RunFunc is the single blocking entry point of an isolation-required broker:
// it logs in and performs the phase in one call.
type RunFunc func(ctx context.Context, o *domain.Order, phase domain.Phase, env LoginEnv) (domain.Session, error)

// Descriptor is the static capability record for one canonical broker.
type Descriptor struct {
	Name       string
	Convention Convention

	// Isolated brokers expose Run and are executed on a dedicated context.
	Isolated bool
	Run      RunFunc

	Login       LoginFunc
	Holdings    HoldingsFunc
	Transaction TransactionFunc
}

// Validate checks that the descriptor carries the entry points its
// execution model needs.
func (d Descriptor) Validate() error {
	if d.Name == "" {
		return errors.New("descriptor: empty name")
	}
	if d.Isolated {
		if d.Run == nil {
			return fmt.Errorf("descriptor %s: isolated broker needs Run", d.Name)
		}
		return nil
	}
	if d.Login == nil || d.Holdings == nil || d.Transaction == nil {
		return fmt.Errorf("descriptor %s: needs Login, Holdings and Transaction", d.Name)
	}
	return nil
}
