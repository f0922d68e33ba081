package events

const (
	KindExchangeStarted   Kind = "exchange.started"
	KindExchangeCompleted Kind = "exchange.completed"
	KindExchangeFailed    Kind = "exchange.failed"
	KindExchangeCancelled Kind = "exchange.cancelled"
)

type exchangeBase struct {
	Base
	ExchangeID string
	MessageID  string
}

// ExchangeStarted marks that a chat stream was requested.
type ExchangeStarted struct{ exchangeBase }

func NewExchangeStarted(exchangeID, messageID string) ExchangeStarted {
	return ExchangeStarted{exchangeBase{Base: NewBase(KindExchangeStarted), ExchangeID: exchangeID, MessageID: messageID}}
}

// ExchangeCompleted marks that the chat stream ended normally.
type ExchangeCompleted struct{ exchangeBase }

func NewExchangeCompleted(exchangeID, messageID string) ExchangeCompleted {
	return ExchangeCompleted{exchangeBase{Base: NewBase(KindExchangeCompleted), ExchangeID: exchangeID, MessageID: messageID}}
}

// ExchangeFailed marks that the chat stream failed. Err is never nil.
type ExchangeFailed struct {
	exchangeBase
	Err error
}

func NewExchangeFailed(exchangeID, messageID string, err error) ExchangeFailed {
	return ExchangeFailed{
		exchangeBase: exchangeBase{Base: NewBase(KindExchangeFailed), ExchangeID: exchangeID, MessageID: messageID},
		Err:          err,
	}
}

// ExchangeCancelled marks that the chat stream was abandoned.
type ExchangeCancelled struct{ exchangeBase }

func NewExchangeCancelled(exchangeID, messageID string) ExchangeCancelled {
	return ExchangeCancelled{exchangeBase{Base: NewBase(KindExchangeCancelled), ExchangeID: exchangeID, MessageID: messageID}}
}
