// Package remotetest provides an in-memory payment authority for tests.
package remotetest

import (
	"context"
	"sync"

	"github.com/smallbiznis/chargeback/internal/remote"
)

// Call is one recorded authority invocation.
type Call struct {
	Operation    string
	User         remote.UserInfo
	InvoiceID    string
	PaymentID    string
	ChargebackID string
	Params       interface{}
}

// Authority records every call and fails operations listed in Failures.
type Authority struct {
	mu       sync.Mutex
	calls    []Call
	Failures map[string]error
}

var _ remote.Authority = (*Authority)(nil)

func NewAuthority() *Authority {
	return &Authority{Failures: map[string]error{}}
}

// FailOn makes every later call of operation return err.
func (a *Authority) FailOn(operation string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Failures[operation] = err
}

func (a *Authority) Calls() []Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Call, len(a.calls))
	copy(out, a.calls)
	return out
}

// Operations lists recorded operation names in call order.
func (a *Authority) Operations() []string {
	calls := a.Calls()
	out := make([]string, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.Operation)
	}
	return out
}

func (a *Authority) CreateChargeback(ctx context.Context, user remote.UserInfo, invoiceID, paymentID, chargebackID string, params remote.CreateParams) error {
	return a.record(remote.OperationCreate, user, invoiceID, paymentID, chargebackID, params)
}

func (a *Authority) AcceptChargeback(ctx context.Context, user remote.UserInfo, invoiceID, paymentID, chargebackID string, params remote.AcceptParams) error {
	return a.record(remote.OperationAccept, user, invoiceID, paymentID, chargebackID, params)
}

func (a *Authority) RejectChargeback(ctx context.Context, user remote.UserInfo, invoiceID, paymentID, chargebackID string, params remote.RejectParams) error {
	return a.record(remote.OperationReject, user, invoiceID, paymentID, chargebackID, params)
}

func (a *Authority) CancelChargeback(ctx context.Context, user remote.UserInfo, invoiceID, paymentID, chargebackID string, params remote.CancelParams) error {
	return a.record(remote.OperationCancel, user, invoiceID, paymentID, chargebackID, params)
}

func (a *Authority) ReopenChargeback(ctx context.Context, user remote.UserInfo, invoiceID, paymentID, chargebackID string, params remote.ReopenParams) error {
	return a.record(remote.OperationReopen, user, invoiceID, paymentID, chargebackID, params)
}

func (a *Authority) record(op string, user remote.UserInfo, invoiceID, paymentID, chargebackID string, params interface{}) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, Call{
		Operation:    op,
		User:         user,
		InvoiceID:    invoiceID,
		PaymentID:    paymentID,
		ChargebackID: chargebackID,
		Params:       params,
	})
	return a.Failures[op]
}
