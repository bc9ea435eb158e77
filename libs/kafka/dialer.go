// Package kafka wires writers for the portal's event streams, with TLS client
// auth and prometheus instrumentation of the broker certificate.
package kafka

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/linkedin/goavro"
	"github.com/segmentio/kafka-go"

	appctx "github.com/portal-pay/portal-go/libs/context"
	errorutils "github.com/portal-pay/portal-go/libs/errors"
	"github.com/portal-pay/portal-go/libs/logging"
)

const dialTimeout = 10 * time.Second

// clientKeyPair loads the client certificate and key PEM from the
// KAFKA_SSL_CERTIFICATE / KAFKA_SSL_KEY environment variables or the files
// named by their *_LOCATION counterparts. Both come back empty when no
// certificate is configured.
func clientKeyPair() (certPEM, keyPEM []byte, err error) {
	certPEM = []byte(os.Getenv("KAFKA_SSL_CERTIFICATE"))
	if len(certPEM) == 0 {
		certPEM, err = readEnvFile("KAFKA_SSL_CERTIFICATE_LOCATION", false)
		if err != nil {
			return nil, nil, err
		}
	}
	if len(certPEM) == 0 {
		return nil, nil, nil
	}

	keyPEM = []byte(os.Getenv("KAFKA_SSL_KEY"))

	// the certificate env var may carry a json bundle of cert and key
	if certPEM[0] == '{' {
		var bundle struct {
			Certificate string `json:"certificate"`
			Key         string `json:"key"`
		}
		if err := json.Unmarshal(certPEM, &bundle); err != nil {
			return nil, nil, err
		}
		certPEM = []byte(bundle.Certificate)
		keyPEM = []byte(bundle.Key)
	}

	if len(keyPEM) == 0 {
		keyPEM, err = readEnvFile("KAFKA_SSL_KEY_LOCATION", true)
		if err != nil {
			return nil, nil, err
		}
	}

	return certPEM, keyPEM, nil
}

// TLSDialer creates a kafka dialer over TLS using the configured client
// certificate. When no certificate is configured the dialer falls back to
// plaintext, which is only suitable for local development brokers.
func TLSDialer() (*kafka.Dialer, *x509.Certificate, error) {
	certPEM, encryptedKeyPEM, err := clientKeyPair()
	if err != nil {
		return nil, nil, err
	}

	if len(certPEM) == 0 {
		// plaintext dialer for local brokers
		return &kafka.Dialer{Timeout: dialTimeout, DualStack: true}, nil, nil
	}

	block, rest := pem.Decode(encryptedKeyPEM)
	if len(rest) > 0 {
		return nil, nil, errors.New("extra data in KAFKA_SSL_KEY")
	}

	certificate, leaf, err := parseKeyPair(certPEM, pem.EncodeToMemory(block))
	if err != nil {
		return nil, nil, err
	}

	config := &tls.Config{Certificates: []tls.Certificate{certificate}}

	caPEM, err := readEnvFile("KAFKA_SSL_CA_LOCATION", false)
	if err != nil {
		return nil, nil, err
	}
	if len(caPEM) > 0 {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, nil, errors.New("could not add custom CA from KAFKA_SSL_CA_LOCATION")
		}
		config.RootCAs = pool
	}

	return &kafka.Dialer{Timeout: dialTimeout, DualStack: true, TLS: config}, leaf, nil
}

// parseKeyPair builds the tls certificate and checks the leaf has not expired.
func parseKeyPair(certPEM, keyPEM []byte) (tls.Certificate, *x509.Certificate, error) {
	certificate, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return tls.Certificate{}, nil, errorutils.Wrap(err, "could not parse x509 keypair")
	}

	leaf, err := x509.ParseCertificate(certificate.Certificate[0])
	if err != nil {
		return tls.Certificate{}, nil, errorutils.Wrap(err, "could not parse certificate")
	}
	if time.Now().After(leaf.NotAfter) {
		return tls.Certificate{}, nil, errorutils.ErrCertificateExpired
	}

	return certificate, leaf, nil
}

func readEnvFile(env string, required bool) ([]byte, error) {
	loc := os.Getenv(env)
	if loc == "" {
		if !required {
			return nil, nil
		}
		return nil, errors.New(env + " must be passed")
	}
	return os.ReadFile(loc)
}

// InitKafkaWriter creates a kafka writer for topic against the brokers named
// on the context.
func InitKafkaWriter(ctx context.Context, topic string) (*kafka.Writer, *kafka.Dialer, error) {
	logger := logging.Logger(ctx, "kafka.InitKafkaWriter")

	dialer, cert, err := TLSDialer()
	if err != nil {
		return nil, nil, err
	}
	// expose the broker cert expiry as a metric
	InstrumentKafka(context.WithValue(ctx, appctx.Kafka509CertCTXKey, cert))

	brokers := strings.Split(ctx.Value(appctx.KafkaBrokersCTXKey).(string), ",")
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      brokers,
		Balancer:     &kafka.LeastBytes{},
		Dialer:       dialer,
		Topic:        topic,
		BatchTimeout: 1 * time.Second,
		Logger:       kafka.LoggerFunc(logger.Printf),
	})

	return writer, dialer, nil
}

// GenerateCodecs compiles each avro schema, keyed by topic name.
func GenerateCodecs(schemas map[string]string) (map[string]*goavro.Codec, error) {
	codecs := make(map[string]*goavro.Codec, len(schemas))
	for topic, schema := range schemas {
		codec, err := goavro.NewCodec(schema)
		if err != nil {
			return nil, fmt.Errorf("failed to generate codec: %w", err)
		}
		codecs[topic] = codec
	}
	return codecs, nil
}
