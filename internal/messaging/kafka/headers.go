package kafka

import (
	"strconv"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel/propagation"
)

// Заголовки сообщений в DLQ.
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// outgoingHeaders пишет traceparent и baggage в заголовки исходящего сообщения.
type outgoingHeaders struct {
	msg *sarama.ProducerMessage
}

var _ propagation.TextMapCarrier = outgoingHeaders{}

func (h outgoingHeaders) Get(key string) string {
	for _, header := range h.msg.Headers {
		if string(header.Key) == key {
			return string(header.Value)
		}
	}
	return ""
}

func (h outgoingHeaders) Set(key, value string) {
	for i := range h.msg.Headers {
		if string(h.msg.Headers[i].Key) == key {
			h.msg.Headers[i].Value = []byte(value)
			return
		}
	}
	h.msg.Headers = append(h.msg.Headers, sarama.RecordHeader{Key: []byte(key), Value: []byte(value)})
}

func (h outgoingHeaders) Keys() []string {
	keys := make([]string, 0, len(h.msg.Headers))
	for _, header := range h.msg.Headers {
		keys = append(keys, string(header.Key))
	}
	return keys
}

// incomingHeaders читает заголовки полученного сообщения. Set ничего не делает.
type incomingHeaders []*sarama.RecordHeader

var _ propagation.TextMapCarrier = incomingHeaders(nil)

func (h incomingHeaders) Get(key string) string {
	value, _ := h.lookup(key)
	return value
}

func (incomingHeaders) Set(string, string) {}

func (h incomingHeaders) Keys() []string {
	keys := make([]string, 0, len(h))
	for _, header := range h {
		if header != nil {
			keys = append(keys, string(header.Key))
		}
	}
	return keys
}

func (h incomingHeaders) lookup(key string) (string, bool) {
	for _, header := range h {
		if header != nil && string(header.Key) == key {
			return string(header.Value), true
		}
	}
	return "", false
}

// retryCount возвращает число попыток, уже сделанных до повторной публикации сообщения.
// Битое или отрицательное значение заголовка считается нулём.
func retryCount(message *sarama.ConsumerMessage) int {
	raw, ok := incomingHeaders(message.Headers).lookup(HeaderRetryCount)
	if !ok {
		return 0
	}
	count, err := strconv.Atoi(raw)
	if err != nil || count < 0 {
		return 0
	}
	return count
}
