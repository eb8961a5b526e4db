package onboarding

import (
	"context"
	"fmt"
	"time"

	"github.com/glimte/sagamate-go/contracts"
	"github.com/glimte/sagamate-go/flowlog"
	"github.com/glimte/sagamate-go/saga"
	"github.com/glimte/sagamate-go/timeout"
)

const (
	creditCheckSagaType = "creditCheck"
	creditCheckDoneTag  = "creditCheckDone"
)

// CheckCreditSaga runs the caf side of onboarding. The external credit bureau
// call is simulated by a timeout; when the reply arrives the saga publishes
// CustomerCreditCheckComplete and finishes.
type CheckCreditSaga struct {
	delay time.Duration
	flow  flowlog.FlowLog
}

// NewCheckCreditSaga creates the credit check saga with the simulated check
// duration
func NewCheckCreditSaga(delay time.Duration, flow flowlog.FlowLog) *CheckCreditSaga {
	if flow == nil {
		flow = flowlog.NopFlowLog{}
	}
	return &CheckCreditSaga{delay: delay, flow: flow}
}

// CreditCheckData is the per-customer state of the credit check
type CreditCheckData struct {
	CustomerID    string `json:"customerId"`
	Name          string `json:"name"`
	CheckComplete bool   `json:"checkComplete"`
}

// SagaType implements saga.Saga
func (s *CheckCreditSaga) SagaType() string {
	return creditCheckSagaType
}

// NewData implements saga.Saga
func (s *CheckCreditSaga) NewData() saga.Data {
	return &CreditCheckData{}
}

// Handle implements saga.Saga
func (s *CheckCreditSaga) Handle(ctx context.Context, exec *saga.Execution, msg contracts.Message) error {
	data := exec.Data().(*CreditCheckData)

	switch m := msg.(type) {
	case *CustomerCreated:
		if !exec.IsNew() {
			// duplicate announcement; the check is already under way
			return nil
		}
		data.CustomerID = m.CustomerID
		data.Name = m.Name
		exec.RequestTimeout(s.delay, creditCheckDoneTag)
		s.flow.Append(m.CustomerID, "credit check started for %s", m.Name)

	case *timeout.Reply:
		if data.CheckComplete {
			// redelivered reply; the result is already out
			return nil
		}
		data.CheckComplete = true
		exec.Publish(NewCustomerCreditCheckComplete(data.CustomerID))
		exec.MarkComplete()
		s.flow.Append(data.CustomerID, "credit check passed")

	default:
		return fmt.Errorf("unexpected message type %s", msg.GetType())
	}

	return nil
}

// Registration binds the saga to its correlation rules
func (s *CheckCreditSaga) Registration() *saga.Registration {
	return &saga.Registration{
		Saga: s,
		Mappings: []saga.Mapping{
			{MessageType: CustomerCreatedMessageType, Initiates: true, Key: customerKey},
			timeout.ReplyMapping(s.SagaType()),
		},
	}
}
