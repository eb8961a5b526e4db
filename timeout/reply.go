package timeout

import (
	"github.com/glimte/sagamate-go/contracts"
	"github.com/glimte/sagamate-go/saga"
)

// ReplyMessageType is the type tag of timeout reply messages
const ReplyMessageType = "TimeoutReply"

// Reply is the message the timeout service delivers when an entry comes due.
// It travels through the same dispatch path as ordinary inbound messages.
type Reply struct {
	contracts.BaseMessage
	SagaType       string `json:"sagaType"`
	CorrelationKey string `json:"correlationKey"`
	CustomData     string `json:"customData,omitempty"`
}

// NewReply creates a timeout reply for a saga instance
func NewReply(sagaType string, correlationKey string, customData string) *Reply {
	reply := &Reply{
		BaseMessage:    contracts.NewBaseMessage(ReplyMessageType),
		SagaType:       sagaType,
		CorrelationKey: correlationKey,
		CustomData:     customData,
	}
	reply.SetCorrelationID(correlationKey)
	return reply
}

// ReplyMapping returns the correlation rule a saga registers to receive its
// own timeout replies. Replies addressed to other saga types yield no key and
// are discarded quietly.
func ReplyMapping(sagaType string) saga.Mapping {
	return saga.Mapping{
		MessageType: ReplyMessageType,
		Key: func(msg contracts.Message) string {
			reply, ok := msg.(*Reply)
			if !ok || reply.SagaType != sagaType {
				return ""
			}
			return reply.CorrelationKey
		},
	}
}
