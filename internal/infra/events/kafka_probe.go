package events

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/segmentio/kafka-go"

	"github.com/davicafu/auctionsearch/internal/shared/infra/retry"
)

// PingKafka abre una conexión con el primer broker que responda y pide los metadatos
// del cluster. Los fallos de autenticación o de topic inválido son permanentes.
func PingKafka(dialer *kafka.Dialer, brokers []string) func(ctx context.Context) error {
	if dialer == nil {
		dialer = kafka.DefaultDialer
	}
	return func(ctx context.Context) error {
		if len(brokers) == 0 {
			return retry.Permanent(errors.New("no kafka brokers configured"))
		}

		var lastErr error
		for _, broker := range brokers {
			conn, err := dialer.DialContext(ctx, "tcp", broker)
			if err != nil {
				lastErr = classifyKafkaError(fmt.Errorf("dial %s: %w", broker, err))
				if retry.IsPermanent(lastErr) {
					return lastErr
				}
				continue
			}
			_, err = conn.Brokers()
			conn.Close()
			if err != nil {
				lastErr = classifyKafkaError(fmt.Errorf("metadata %s: %w", broker, err))
				continue
			}
			return nil
		}
		return lastErr
	}
}

// classifyKafkaError marca como permanentes los fallos de credenciales, topic y
// dirección de broker mal escrita; los errores temporales del protocolo y los
// cortes de conexión se marcan como pasajeros.
func classifyKafkaError(err error) error {
	var addrErr *net.AddrError
	var dnsErr *net.DNSError
	var kafkaErr kafka.Error
	switch {
	case errors.Is(err, kafka.SASLAuthenticationFailed),
		errors.Is(err, kafka.TopicAuthorizationFailed),
		errors.Is(err, kafka.GroupAuthorizationFailed),
		errors.Is(err, kafka.ClusterAuthorizationFailed),
		errors.Is(err, kafka.InvalidTopic):
		return retry.Permanent(err)
	case errors.As(err, &addrErr):
		return retry.Permanent(err)
	case errors.As(err, &dnsErr) && dnsErr.Err == "unknown port":
		// El host puede tardar en resolverse (DNS de contenedores); un puerto inválido no.
		return retry.Permanent(err)
	case errors.As(err, &kafkaErr) && kafkaErr.Temporary(),
		errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return retry.Transient(err)
	default:
		return err
	}
}
