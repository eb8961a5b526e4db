package onboarding

import (
	"context"
	"fmt"

	"github.com/glimte/sagamate-go/contracts"
	"github.com/glimte/sagamate-go/flowlog"
	"github.com/glimte/sagamate-go/saga"
)

const customerInformationSagaType = "customerInformation"

// CheckStatus tracks one upstream check in the consolidated record
type CheckStatus struct {
	Complete bool `json:"complete"`
}

// CustomerInformationData is the consolidated onboarding record maintained by
// the dcc endpoint: one per customer, completed when both checks have reported
type CustomerInformationData struct {
	CustomerID   string      `json:"customerId"`
	Name         string      `json:"name"`
	CreditStatus CheckStatus `json:"creditStatus"`
	LegalStatus  CheckStatus `json:"legalStatus"`
}

// CustomerInformationSaga correlates the credit and legal outcomes for each
// customer. Only CustomerCreated opens a record; a completion event arriving
// before it correlates to nothing and is dropped by the runtime.
type CustomerInformationSaga struct {
	flow flowlog.FlowLog
}

// NewCustomerInformationSaga creates the consolidation saga
func NewCustomerInformationSaga(flow flowlog.FlowLog) *CustomerInformationSaga {
	if flow == nil {
		flow = flowlog.NopFlowLog{}
	}
	return &CustomerInformationSaga{flow: flow}
}

// SagaType implements saga.Saga
func (s *CustomerInformationSaga) SagaType() string {
	return customerInformationSagaType
}

// NewData implements saga.Saga
func (s *CustomerInformationSaga) NewData() saga.Data {
	return &CustomerInformationData{}
}

// Handle implements saga.Saga
func (s *CustomerInformationSaga) Handle(ctx context.Context, exec *saga.Execution, msg contracts.Message) error {
	data := exec.Data().(*CustomerInformationData)

	switch m := msg.(type) {
	case *CustomerCreated:
		data.CustomerID = m.CustomerID
		data.Name = m.Name
		s.flow.Append(m.CustomerID, "onboarding record opened for %s", m.Name)

	case *CustomerCreditCheckComplete:
		data.CreditStatus.Complete = true
		s.flow.Append(m.CustomerID, "credit status recorded")

	case *CustomerLegallyApproved:
		data.LegalStatus.Complete = true
		s.flow.Append(m.CustomerID, "legal status recorded")

	default:
		return fmt.Errorf("unexpected message type %s", msg.GetType())
	}

	if data.CreditStatus.Complete && data.LegalStatus.Complete {
		exec.MarkComplete()
		s.flow.Append(data.CustomerID, "onboarding complete")
	}

	return nil
}

// Registration binds the saga to its correlation rules
func (s *CustomerInformationSaga) Registration() *saga.Registration {
	return &saga.Registration{
		Saga: s,
		Mappings: []saga.Mapping{
			{MessageType: CustomerCreatedMessageType, Initiates: true, Key: customerKey},
			{MessageType: CustomerCreditCheckCompleteMessageType, Key: customerKey},
			{MessageType: CustomerLegallyApprovedMessageType, Key: customerKey},
		},
	}
}
