package timing

import (
	"github.com/sirupsen/logrus"
)

// Sink receives every raw sample as it is collected. It is for debugging
// only; nothing reads the samples back from it.
type Sink interface {
	Record(checkpoint string, trial int, s Sample)
}

// NopSink discards samples.
type NopSink struct{}

// Record does nothing.
func (NopSink) Record(string, int, Sample) {}

// LogSink writes samples to a logrus logger.
type LogSink struct {
	Log logrus.FieldLogger
}

// NewLogSink returns a LogSink writing to l, or to the standard logrus
// logger when l is nil.
func NewLogSink(l logrus.FieldLogger) *LogSink {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &LogSink{Log: l}
}

// Record logs one sample at debug level.
func (s *LogSink) Record(checkpoint string, trial int, sample Sample) {
	s.Log.WithFields(logrus.Fields{
		"checkpoint": checkpoint,
		"trial":      trial,
		"value":      sample.String(),
	}).Debug("sample")
}
