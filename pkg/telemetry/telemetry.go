// Package telemetry records tracker state to InfluxDB.
package telemetry

import (
	"sort"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api/write"
	"go.uber.org/zap"

	"github.com/theaterbots/lightarm/pkg/robot"
	"github.com/theaterbots/lightarm/pkg/tracker"
)

// Measurement names.
const (
	MeasurementArm  = "lightarm.arm"
	MeasurementTick = "lightarm.tick"
)

// PointWriter is the non-blocking write side of an InfluxDB client.
type PointWriter interface {
	WritePoint(point *write.Point)
	Flush()
	Close()
}

// Recorder writes one point per arm and one per tick.
type Recorder struct {
	writer PointWriter
	client influxdb2.Client
	logger *zap.Logger
}

// Open connects to the server in cfg. Write errors are logged, never returned.
func Open(cfg robot.TelemetryConfig, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	// Get non-blocking write client
	writeApi := client.WriteApi(cfg.Org, cfg.Bucket)
	errorsCh := writeApi.Errors()
	go func() {
		for err := range errorsCh {
			logger.Warn("telemetry write error", zap.Error(err))
		}
	}()
	logger.Info("telemetry enabled", zap.String("url", cfg.URL), zap.String("bucket", cfg.Bucket))

	r := NewRecorder(writeApi, logger)
	r.client = client
	return r
}

// NewRecorder records to an existing writer.
func NewRecorder(w PointWriter, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{writer: w, logger: logger}
}

// Observe implements tracker.Observer.
func (r *Recorder) Observe(s tracker.State) {
	ids := make([]string, 0, len(s.Joints))
	for id := range s.Joints {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		j := s.Joints[id]
		_, skipped := s.Skipped[id]
		r.writer.WritePoint(influxdb2.NewPoint(MeasurementArm,
			map[string]string{"arm": id},
			map[string]interface{}{
				"forearm": j.Forearm,
				"base":    j.Base,
				"skipped": skipped,
			},
			s.Timestamp,
		))
	}

	fields := map[string]interface{}{
		"channels": len(s.Command),
		"skipped":  len(s.Skipped),
		"ok":       s.Error == nil,
	}
	if s.Error != nil {
		fields["error"] = s.Error.Error()
	}
	r.writer.WritePoint(influxdb2.NewPoint(MeasurementTick, nil, fields, s.Timestamp))
}

// Close flushes pending points and closes the client.
func (r *Recorder) Close() error {
	r.writer.Flush()
	r.writer.Close()
	if r.client != nil {
		r.client.Close()
	}
	return nil
}

var _ tracker.Observer = (*Recorder)(nil)
