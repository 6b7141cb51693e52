package metrics

import (
	"context"
	"time"

	"github.com/gofrs/uuid"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/pkg/errors"

	"github.com/YewRongDe/HTR/config"
)

// InfluxSink writes points to an InfluxDB v2 bucket.
//
// Points are written synchronously and tagged with a run
// id, so that separate training runs can be told apart.
type InfluxSink struct {
	Measurement string
	RunID       string

	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

// NewInfluxSink connects to the configured server.
func NewInfluxSink(cfg config.InfluxDBConfig) (*InfluxSink, error) {
	if cfg.URL == "" {
		return nil, errors.New("empty InfluxDB URL")
	}
	runID, err := uuid.NewV4()
	if err != nil {
		return nil, errors.Wrap(err, "create run id")
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxSink{
		Measurement: cfg.Measurement,
		RunID:       runID.String(),
		client:      client,
		writeAPI:    client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
	}, nil
}

// Record writes the point.
func (i *InfluxSink) Record(ctx context.Context, p Point) error {
	point := influxdb2.NewPoint(
		i.Measurement,
		map[string]string{"run": i.RunID},
		map[string]interface{}{
			"step": p.Step,
			"loss": p.Loss,
			"rate": p.Rate,
		},
		time.Now(),
	)
	if err := i.writeAPI.WritePoint(ctx, point); err != nil {
		return errors.Wrap(err, "write InfluxDB point")
	}
	return nil
}

// Close releases the client.
func (i *InfluxSink) Close() {
	i.client.Close()
}
