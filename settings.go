package softtx

import "time"

// Settings is the configuration set pushed by the orchestration layer.
// Zero counts and a zero poll interval leave the option unset. MinDelayMillis
// is applied only when present and not negative, so an explicit zero makes new
// logs eligible immediately while an omitted field keeps the earlier value.
type Settings struct {
	MaxDeliveryTryTimes int    `json:"maxDeliveryTryTimes"`
	BatchSize           int    `json:"batchSize"`
	MinDelayMillis      *int64 `json:"minDelayMillis,omitempty"`
	PollIntervalMillis  int64  `json:"pollIntervalMillis"`
}

// Options converts s into executor options.
func (s Settings) Options() []Option {
	opts := make([]Option, 0, 4)
	if s.MaxDeliveryTryTimes > 0 {
		opts = append(opts, WithMaxDeliveryTryTimes(s.MaxDeliveryTryTimes))
	}
	if s.BatchSize > 0 {
		opts = append(opts, WithBatchSize(s.BatchSize))
	}
	if s.MinDelayMillis != nil && *s.MinDelayMillis >= 0 {
		opts = append(opts, WithMinDelay(time.Duration(*s.MinDelayMillis)*time.Millisecond))
	}
	if s.PollIntervalMillis > 0 {
		opts = append(opts, WithPollInterval(time.Duration(s.PollIntervalMillis)*time.Millisecond))
	}

	return opts
}
