package schedule

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/arcline/maestro/pkg/errs"
	"github.com/robfig/cron/v3"
	"go.temporal.io/sdk/client"
)

// Raw is a descriptor field that accepts either a single scalar or a
// sequence of scalars. Order is preserved; entries are OR-combined by
// the remote scheduler (any match fires).
type Raw []any

func (r *Raw) UnmarshalJSON(b []byte) error {
	var seq []any
	if err := json.Unmarshal(b, &seq); err == nil {
		*r = seq
		return nil
	}
	var scalar any
	if err := json.Unmarshal(b, &scalar); err != nil {
		return err
	}
	*r = Raw{scalar}
	return nil
}

// Descriptor is the raw scheduling intent attached to a scheduled method.
type Descriptor struct {
	Cron     Raw    `json:"cron,omitempty"`
	Interval Raw    `json:"interval,omitempty"`
	Calendar Raw    `json:"calendar,omitempty"`
	Timezone string `json:"timezone,omitempty"`

	Jitter time.Duration `json:"jitter,omitempty"`
}

// IntervalSpec is one normalized interval entry, e.g. {Every: "30s"}.
type IntervalSpec struct {
	Every string `json:"every"`
}

// Spec is the normalized schedule specification handed to the remote
// scheduler. TimeZone stays empty unless the descriptor carried one;
// the registry applies the deployment default when composing the
// remote options.
type Spec struct {
	CronExpressions []string       `json:"cronExpressions,omitempty"`
	Intervals       []IntervalSpec `json:"intervals,omitempty"`
	Calendars       []any          `json:"calendars,omitempty"`
	TimeZone        string         `json:"timeZone,omitempty"`
	Jitter          time.Duration  `json:"jitter,omitempty"`
}

// BuildOption adjusts builder behavior.
type BuildOption func(*buildConfig)

type buildConfig struct {
	strictCron bool
}

// WithStrictCron makes Build reject cron expressions that do not parse
// under the standard five-field format. The default is verbatim
// pass-through; strictness is a deployment choice.
func WithStrictCron() BuildOption {
	return func(c *buildConfig) { c.strictCron = true }
}

// Build normalizes a descriptor into a Spec. It is pure: no I/O, no
// side effects, deterministic for a given input.
func Build(d Descriptor, opts ...BuildOption) (Spec, error) {
	var cfg buildConfig
	for _, o := range opts {
		o(&cfg)
	}

	spec := Spec{
		TimeZone: d.Timezone,
		Jitter:   d.Jitter,
	}

	for _, v := range d.Cron {
		expr, ok := v.(string)
		if !ok || expr == "" {
			return Spec{}, errs.Validationf("cron expression must be a non-empty string, got %T", v)
		}
		if cfg.strictCron {
			if _, err := cron.ParseStandard(expr); err != nil {
				return Spec{}, errs.Validationf("invalid cron expression %q: %v", expr, err)
			}
		}
		spec.CronExpressions = append(spec.CronExpressions, expr)
	}

	for _, v := range d.Interval {
		every, err := normalizeInterval(v)
		if err != nil {
			return Spec{}, err
		}
		spec.Intervals = append(spec.Intervals, IntervalSpec{Every: every})
	}

	spec.Calendars = append(spec.Calendars, d.Calendar...)

	if len(spec.CronExpressions) == 0 && len(spec.Intervals) == 0 && len(spec.Calendars) == 0 {
		return Spec{}, errs.Validationf("Either cron or interval must be provided")
	}

	return spec, nil
}

// recognized duration unit suffixes, longest first so "ms" wins over "s"
var unitSuffixes = []string{"ms", "s", "m", "h"}

// normalizeInterval turns a single raw interval value into a duration
// string. Bare numbers are milliseconds; strings carrying a recognized
// unit pass through unchanged; anything else gets "ms" appended.
func normalizeInterval(v any) (string, error) {
	switch t := v.(type) {
	case int:
		return fmt.Sprintf("%dms", t), nil
	case int32:
		return fmt.Sprintf("%dms", t), nil
	case int64:
		return fmt.Sprintf("%dms", t), nil
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%dms", int64(t)), nil
		}
		return fmt.Sprintf("%gms", t), nil
	case time.Duration:
		return t.String(), nil
	case string:
		if t == "" {
			return "", errs.Validationf("interval value must not be empty")
		}
		for _, suffix := range unitSuffixes {
			if strings.HasSuffix(t, suffix) {
				return t, nil
			}
		}
		return t + "ms", nil
	default:
		return "", errs.Validationf("unsupported interval value type %T", v)
	}
}

// ToTemporal converts a normalized Spec into the wire-level schedule
// spec, applying defaultTimeZone when the descriptor carried none.
func ToTemporal(s Spec, defaultTimeZone string) (client.ScheduleSpec, error) {
	out := client.ScheduleSpec{
		CronExpressions: s.CronExpressions,
		TimeZoneName:    s.TimeZone,
		Jitter:          s.Jitter,
	}
	if out.TimeZoneName == "" {
		out.TimeZoneName = defaultTimeZone
	}

	for _, iv := range s.Intervals {
		d, err := time.ParseDuration(iv.Every)
		if err != nil {
			return client.ScheduleSpec{}, errs.Validationf("invalid interval %q: %v", iv.Every, err)
		}
		out.Intervals = append(out.Intervals, client.ScheduleIntervalSpec{Every: d})
	}

	for _, c := range s.Calendars {
		if cal, ok := c.(client.ScheduleCalendarSpec); ok {
			out.Calendars = append(out.Calendars, cal)
		}
	}

	return out, nil
}
