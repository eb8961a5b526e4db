package onboarding

import (
	"github.com/glimte/sagamate-go/contracts"
	"github.com/glimte/sagamate-go/serialization"
)

// Message type names of the onboarding events
const (
	CustomerCreatedMessageType             = "CustomerCreated"
	CustomerCreditCheckCompleteMessageType = "CustomerCreditCheckComplete"
	CustomerLegallyApprovedMessageType     = "CustomerLegallyApproved"
)

// CustomerCreated announces a new customer entering onboarding
type CustomerCreated struct {
	contracts.BaseEvent
	CustomerID string `json:"customerId"`
	Name       string `json:"name"`
}

// NewCustomerCreated creates a CustomerCreated event
func NewCustomerCreated(customerID string, name string) *CustomerCreated {
	event := &CustomerCreated{
		BaseEvent:  contracts.NewBaseEvent(CustomerCreatedMessageType, customerID),
		CustomerID: customerID,
		Name:       name,
	}
	event.SetCorrelationID(customerID)
	return event
}

// CustomerCreditCheckComplete announces that the credit check passed
type CustomerCreditCheckComplete struct {
	contracts.BaseEvent
	CustomerID string `json:"customerId"`
}

// NewCustomerCreditCheckComplete creates a CustomerCreditCheckComplete event
func NewCustomerCreditCheckComplete(customerID string) *CustomerCreditCheckComplete {
	event := &CustomerCreditCheckComplete{
		BaseEvent:  contracts.NewBaseEvent(CustomerCreditCheckCompleteMessageType, customerID),
		CustomerID: customerID,
	}
	event.SetCorrelationID(customerID)
	return event
}

// CustomerLegallyApproved announces that the legal check passed
type CustomerLegallyApproved struct {
	contracts.BaseEvent
	CustomerID string `json:"customerId"`
}

// NewCustomerLegallyApproved creates a CustomerLegallyApproved event
func NewCustomerLegallyApproved(customerID string) *CustomerLegallyApproved {
	event := &CustomerLegallyApproved{
		BaseEvent:  contracts.NewBaseEvent(CustomerLegallyApprovedMessageType, customerID),
		CustomerID: customerID,
	}
	event.SetCorrelationID(customerID)
	return event
}

// RegisterMessageTypes adds the onboarding event factories to the global type
// registry. Calling it more than once is harmless.
func RegisterMessageTypes() {
	serialization.Register(CustomerCreatedMessageType, func() contracts.Message { return &CustomerCreated{} })
	serialization.Register(CustomerCreditCheckCompleteMessageType, func() contracts.Message { return &CustomerCreditCheckComplete{} })
	serialization.Register(CustomerLegallyApprovedMessageType, func() contracts.Message { return &CustomerLegallyApproved{} })
}

// customerKey correlates every onboarding event on its customer id
func customerKey(msg contracts.Message) string {
	switch m := msg.(type) {
	case *CustomerCreated:
		return m.CustomerID
	case *CustomerCreditCheckComplete:
		return m.CustomerID
	case *CustomerLegallyApproved:
		return m.CustomerID
	}
	return ""
}
