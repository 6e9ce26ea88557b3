package datadog

import (
	"context"
	"fmt"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/psu-controller/internal/env"
	"github.com/thatsimonsguy/psu-controller/internal/model"
	"github.com/thatsimonsguy/psu-controller/internal/psu"
)

var dogstatsd *statsd.Client

func InitMetrics() {
	var err error
	dogstatsd, err = statsd.New(env.Cfg.DDAgentAddr)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create DogStatsD client")
		return
	}

	dogstatsd.Namespace = env.Cfg.DDNamespace
	dogstatsd.Tags = env.Cfg.DDTags

	log.Info().
		Str("addr", env.Cfg.DDAgentAddr).
		Str("namespace", env.Cfg.DDNamespace).
		Strs("tags", env.Cfg.DDTags).
		Msg("Datadog metrics initialized")
}

func Gauge(name string, value float64, tags ...string) {
	if dogstatsd != nil {
		err := dogstatsd.Gauge(name, value, tags, 1)
		if err != nil && env.Cfg.EnableDatadog {
			log.Warn().Err(err).Str("metric", name).Msg("Failed to emit gauge metric")
		}
	}
}

var gauge = Gauge

type StatusSource interface {
	Status() psu.Status
}

// Report emits the controller gauges every interval until ctx is done.
func Report(ctx context.Context, interval time.Duration, src StatusSource) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			emitStatus(src.Status())
		}
	}
}

func emitStatus(st psu.Status) {
	gauge("psu.powered_up", boolGauge(st.PoweredUp))
	gauge("psu.boot_test_passed", boolGauge(st.BootTestPassed))
	gauge("psu.current_limited", boolGauge(st.LimitCause != model.MaxCurrentLimitCauseNone && st.LimitCause != ""),
		"cause:"+string(st.LimitCause))
	gauge("psu.on_time_seconds", st.OnTime.Seconds())
	gauge("psu.queued_commands", float64(st.QueuedCommands))

	for _, ch := range st.Channels {
		if ch.Module == "none" {
			continue
		}
		tags := []string{fmt.Sprintf("slot:%d", ch.Slot), "module:" + ch.Module}
		gauge("psu.channel.u_set", ch.Voltage, tags...)
		gauge("psu.channel.i_set", ch.Current, tags...)
		gauge("psu.channel.i_limit", ch.CurrentLimit, tags...)
		gauge("psu.channel.i_mon", ch.Measured, tags...)
		gauge("psu.channel.output_enabled", boolGauge(ch.OutputEnabled), tags...)
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
