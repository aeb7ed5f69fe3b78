package experiment

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	number   = `([0-9]*\.?[0-9]+(?:e[-+]?[0-9]+)?)`
	timeUnit = `(seconds|second|secs|sec|s|minutes|minute|mins|min|m|hours|hour|hrs|hr|h)`
)

var (
	periodSuffix = regexp.MustCompile(`\s*\(\s*` + number + `\s*` + timeUnit + `\s+period\s*\)$`)
	untilSuffix  = regexp.MustCompile(`\s+or\s+until\s+` + number + `\s*(v|mv|a|ma)$`)
	restRe       = regexp.MustCompile(`^rest\s+(?:for\s+)?` + number + `\s*` + timeUnit + `$`)
	currentRe    = regexp.MustCompile(`^(charge|discharge)\s+(?:at\s+)?` + number + `\s*(a|ma)\s+(?:for\s+)?` + number + `\s*` + timeUnit + `$`)
	holdRe       = regexp.MustCompile(`^hold\s+(?:at\s+)?` + number + `\s*(v|mv)\s+(?:for\s+)?` + number + `\s*` + timeUnit + `$`)
	durationRe   = regexp.MustCompile(`^` + number + `\s*` + timeUnit + `$`)
)

// ParsePhase understands the experiment step strings used by liionpack and
// PyBaMM as well as a terse form:
//
//	Discharge at 50 A for 30 minutes
//	Charge at 50 A for 30 minutes or until 3.6 V
//	Hold at 3.6 V for 10 minutes or until 1 A
//	Rest for 15 minutes
//	Charge 50A 30min (5 second period)
//
// period is used unless the step carries its own.
func ParsePhase(s string, period float64) (Phase, error) {
	text := strings.ToLower(strings.Join(strings.Fields(s), " "))
	p := Phase{Description: strings.TrimSpace(s), Period: period}

	if m := periodSuffix.FindStringSubmatch(text); m != nil {
		v, err := seconds(m[1], m[2])
		if err != nil {
			return Phase{}, fmt.Errorf("%w: %q: %w", ErrPhase, s, err)
		}
		p.Period = v
		text = strings.TrimSpace(text[:len(text)-len(m[0])])
	}

	cutoffUnit := ""
	if m := untilSuffix.FindStringSubmatch(text); m != nil {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return Phase{}, fmt.Errorf("%w: %q: %w", ErrPhase, s, err)
		}
		cutoffUnit = m[2]
		if cutoffUnit == "mv" || cutoffUnit == "ma" {
			v /= 1000
			cutoffUnit = cutoffUnit[1:]
		}
		p.Cutoff = v
		text = strings.TrimSpace(text[:len(text)-len(m[0])])
	}

	var err error
	switch {
	case restRe.MatchString(text):
		m := restRe.FindStringSubmatch(text)
		p.Mode = Rest
		p.Duration, err = seconds(m[1], m[2])
		if cutoffUnit != "" {
			return Phase{}, fmt.Errorf("%w: %q: rest steps take no cutoff", ErrPhase, s)
		}

	case currentRe.MatchString(text):
		m := currentRe.FindStringSubmatch(text)
		p.Mode = ConstantCurrent
		p.Magnitude, err = strconv.ParseFloat(m[2], 64)
		if err == nil && m[3] == "ma" {
			p.Magnitude /= 1000
		}
		if m[1] == "charge" {
			p.Magnitude = -p.Magnitude
		}
		if err == nil {
			p.Duration, err = seconds(m[4], m[5])
		}
		if cutoffUnit == "a" {
			return Phase{}, fmt.Errorf("%w: %q: constant-current cutoff must be a voltage", ErrPhase, s)
		}

	case holdRe.MatchString(text):
		m := holdRe.FindStringSubmatch(text)
		p.Mode = ConstantVoltage
		p.Magnitude, err = strconv.ParseFloat(m[1], 64)
		if err == nil && m[2] == "mv" {
			p.Magnitude /= 1000
		}
		if err == nil {
			p.Duration, err = seconds(m[3], m[4])
		}
		if cutoffUnit == "v" {
			return Phase{}, fmt.Errorf("%w: %q: constant-voltage cutoff must be a current", ErrPhase, s)
		}

	default:
		return Phase{}, fmt.Errorf("%w: %q: unrecognised step", ErrPhase, s)
	}
	if err != nil {
		return Phase{}, fmt.Errorf("%w: %q: %w", ErrPhase, s, err)
	}

	if err := p.Validate(); err != nil {
		return Phase{}, err
	}
	return p, nil
}

// ParseDuration converts strings such as "10 seconds" or "1.5h" to seconds.
func ParseDuration(s string) (float64, error) {
	text := strings.ToLower(strings.TrimSpace(s))
	m := durationRe.FindStringSubmatch(text)
	if m == nil {
		return 0, fmt.Errorf("%w: invalid duration %q", ErrPhase, s)
	}
	return seconds(m[1], m[2])
}

func seconds(value, unit string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, err
	}
	switch unit {
	case "minutes", "minute", "mins", "min", "m":
		v *= 60
	case "hours", "hour", "hrs", "hr", "h":
		v *= 3600
	}
	return v, nil
}
