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
	legalCheckSagaType = "legalCheck"
	legalCheckDoneTag  = "legalCheckDone"
)

// CheckLegalSaga runs the legal side of onboarding, mirroring CheckCreditSaga:
// a timeout stands in for the compliance review, and the reply produces
// CustomerLegallyApproved.
type CheckLegalSaga struct {
	delay time.Duration
	flow  flowlog.FlowLog
}

// NewCheckLegalSaga creates the legal check saga with the simulated review
// duration
func NewCheckLegalSaga(delay time.Duration, flow flowlog.FlowLog) *CheckLegalSaga {
	if flow == nil {
		flow = flowlog.NopFlowLog{}
	}
	return &CheckLegalSaga{delay: delay, flow: flow}
}

// LegalCheckData is the per-customer state of the legal review
type LegalCheckData struct {
	CustomerID    string `json:"customerId"`
	Name          string `json:"name"`
	CheckComplete bool   `json:"checkComplete"`
}

// SagaType implements saga.Saga
func (s *CheckLegalSaga) SagaType() string {
	return legalCheckSagaType
}

// NewData implements saga.Saga
func (s *CheckLegalSaga) NewData() saga.Data {
	return &LegalCheckData{}
}

// Handle implements saga.Saga
func (s *CheckLegalSaga) Handle(ctx context.Context, exec *saga.Execution, msg contracts.Message) error {
	data := exec.Data().(*LegalCheckData)

	switch m := msg.(type) {
	case *CustomerCreated:
		if !exec.IsNew() {
			return nil
		}
		data.CustomerID = m.CustomerID
		data.Name = m.Name
		exec.RequestTimeout(s.delay, legalCheckDoneTag)
		s.flow.Append(m.CustomerID, "legal review started for %s", m.Name)

	case *timeout.Reply:
		if data.CheckComplete {
			return nil
		}
		data.CheckComplete = true
		exec.Publish(NewCustomerLegallyApproved(data.CustomerID))
		exec.MarkComplete()
		s.flow.Append(data.CustomerID, "legal review passed")

	default:
		return fmt.Errorf("unexpected message type %s", msg.GetType())
	}

	return nil
}

// Registration binds the saga to its correlation rules
func (s *CheckLegalSaga) Registration() *saga.Registration {
	return &saga.Registration{
		Saga: s,
		Mappings: []saga.Mapping{
			{MessageType: CustomerCreatedMessageType, Initiates: true, Key: customerKey},
			timeout.ReplyMapping(s.SagaType()),
		},
	}
}
