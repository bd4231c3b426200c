package utils

import (
	"crypto/tls"
	"crypto/x509"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
)

// CreateKafkaDialer создает dialer для Kafka с поддержкой SASL/PLAIN и TLS
func CreateKafkaDialer(username, password, caCert string) *kafka.Dialer {
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	if username != "" && password != "" {
		dialer.SASLMechanism = plain.Mechanism{
			Username: username,
			Password: password,
		}
		log.Info().Str("username", username).Msg("🔐 Kafka: SASL/PLAIN аутентификация включена")
	}

	tlsConfig := &tls.Config{}
	if caCert != "" {
		caCertPool := x509.NewCertPool()
		if ok := caCertPool.AppendCertsFromPEM([]byte(caCert)); ok {
			tlsConfig.RootCAs = caCertPool
			log.Info().Msg("🔒 Kafka: TLS с CA сертификатом включен")
		} else {
			log.Warn().Msg("⚠️ Kafka: не удалось распарсить CA сертификат, используем системные сертификаты")
		}
	}

	// SASL без TLS брокеры не принимают
	if dialer.SASLMechanism != nil || caCert != "" {
		dialer.TLS = tlsConfig
	}

	return dialer
}

// NewKafkaTransport - транспорт для kafka.Writer с SASL/TLS настройками dialer
func NewKafkaTransport(dialer *kafka.Dialer) *kafka.Transport {
	return &kafka.Transport{
		SASL:        dialer.SASLMechanism,
		TLS:         dialer.TLS,
		DialTimeout: dialer.Timeout,
	}
}

// ParseKafkaBrokers парсит строку с брокерами (может быть через запятую)
func ParseKafkaBrokers(brokers string) []string {
	if brokers == "" {
		return []string{}
	}
	brokerList := strings.Split(strings.ReplaceAll(brokers, " ", ""), ",")
	result := make([]string, 0, len(brokerList))
	for _, broker := range brokerList {
		if broker != "" {
			result = append(result, broker)
		}
	}
	return result
}
