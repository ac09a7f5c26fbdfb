package testutil

import (
	"log"
	"os"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/kickdeal/chatlink/internal/stats"
)

func TestLogger(t *testing.T) *log.Logger {
	logger := log.New(os.Stdout, "[test] ", log.LstdFlags)
	t.Cleanup(func() {
		logger.SetOutput(os.Stderr)
	})
	return logger
}

// TestStats returns a stats mock that tolerates any metric traffic.
func TestStats(t *testing.T) *stats.MockStatsUpdater {
	m := &stats.MockStatsUpdater{}
	m.On("RegisterMetric", mock.Anything).Maybe()
	m.On("Incr", mock.Anything).Maybe()
	m.On("Decr", mock.Anything).Maybe()
	return m
}
