package kafka

import (
	"context"
	"crypto/x509"

	"github.com/prometheus/client_golang/prometheus"

	appctx "github.com/portal-pay/portal-go/libs/context"
	"github.com/portal-pay/portal-go/libs/logging"
)

var (
	kafkaCertNotBefore = registerGauge(prometheus.GaugeOpts{
		Name: "kafka_cert_not_before",
		Help: "Date when the kafka certificate becomes valid.",
	})
	kafkaCertNotAfter = registerGauge(prometheus.GaugeOpts{
		Name: "kafka_cert_not_after",
		Help: "Date when the kafka certificate expires.",
	})
)

// registerGauge registers a gauge, reusing the existing collector when the
// metric was already registered by an earlier dialer.
func registerGauge(opts prometheus.GaugeOpts) prometheus.Gauge {
	g := prometheus.NewGauge(opts)
	if err := prometheus.Register(g); err != nil {
		if ae, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return ae.ExistingCollector.(prometheus.Gauge)
		}
	}
	return g
}

// InstrumentKafka exports the validity window of the kafka client certificate
// so expiry shows up on dashboards before it breaks the producers.
func InstrumentKafka(ctx context.Context) {
	cert, ok := ctx.Value(appctx.Kafka509CertCTXKey).(*x509.Certificate)
	if !ok || cert == nil {
		logging.Logger(ctx, "kafka.InstrumentKafka").Info().
			Msg("no kafka cert on context, not initializing kafka instrumentation")
		return
	}

	kafkaCertNotBefore.Set(float64(cert.NotBefore.Unix()))
	kafkaCertNotAfter.Set(float64(cert.NotAfter.Unix()))
}
