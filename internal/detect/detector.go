// Package detect classifies inbound requests against heuristic abuse
// signals before they reach the authentication core.
package detect

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Action is what the caller must do with an assessed request.
type Action string

const (
	ActionNone  Action = "none"
	ActionFlag  Action = "flag"  // proceed, but record for audit
	ActionBlock Action = "block" // reject before the auth core
)

// RequestContext is the per-request evidence the detector assesses.
type RequestContext struct {
	IPAddress   string
	UserAgent   string
	Path        string
	Fingerprint string // precomputed device fingerprint; derived from IP+UA when empty
}

// Assessment is the detector's verdict. Reason is set when Suspicious.
type Assessment struct {
	Suspicious bool
	Reason     string
	Action     Action
}

// RateProber reads a fingerprint's request counter. Implemented by the
// Redis counter store.
type RateProber interface {
	Increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// Options are the deployment-tunable signal thresholds.
type Options struct {
	// FlagThreshold/BlockThreshold bound requests per fingerprint inside
	// Window. Flag fires first; Block fires once the higher bound is passed.
	FlagThreshold  int
	BlockThreshold int
	Window         time.Duration

	// RequireUserAgent blocks requests with an empty User-Agent header.
	RequireUserAgent bool

	// BadUserAgents and BadPaths are matched as case-insensitive substrings.
	// Empty slices fall back to the built-in lists.
	BadUserAgents []string
	BadPaths      []string
}

// DefaultOptions returns the documented defaults: flag at 30 requests per
// fingerprint per minute, block at 60, known scanner signatures blocked.
func DefaultOptions() Options {
	return Options{
		FlagThreshold:  30,
		BlockThreshold: 60,
		Window:         time.Minute,
		BadUserAgents:  defaultBadUserAgents,
		BadPaths:       defaultBadPaths,
	}
}

var defaultBadUserAgents = []string{
	"sqlmap",
	"nikto",
	"nmap",
	"masscan",
	"gobuster",
	"dirbuster",
	"wpscan",
	"hydra",
}

var defaultBadPaths = []string{
	"/.env",
	"/.git",
	"/wp-admin",
	"/wp-login",
	"/phpmyadmin",
	"/etc/passwd",
	"/cgi-bin",
	"../",
}

// Detector is a heuristic classifier, not a hard state machine. It keeps no
// per-request state of its own; the fingerprint counters live in the shared
// counter store.
type Detector struct {
	prober RateProber
	opts   Options
	logger *slog.Logger
}

// New builds a Detector. prober may be nil, which disables the rate signal
// and leaves only the static header/path checks.
func New(prober RateProber, opts Options, logger *slog.Logger) *Detector {
	if len(opts.BadUserAgents) == 0 {
		opts.BadUserAgents = defaultBadUserAgents
	}
	if len(opts.BadPaths) == 0 {
		opts.BadPaths = defaultBadPaths
	}
	return &Detector{prober: prober, opts: opts, logger: logger}
}

// Assess classifies one request. Signal order: static signatures first
// (cheap, no store round-trip), then the fingerprint rate counter. Counter
// store trouble degrades to ActionNone rather than blocking traffic.
func (d *Detector) Assess(ctx context.Context, req RequestContext) Assessment {
	ua := strings.ToLower(req.UserAgent)

	if d.opts.RequireUserAgent && strings.TrimSpace(req.UserAgent) == "" {
		return Assessment{Suspicious: true, Reason: "missing user agent", Action: ActionBlock}
	}

	for _, bad := range d.opts.BadUserAgents {
		if bad != "" && strings.Contains(ua, strings.ToLower(bad)) {
			return Assessment{Suspicious: true, Reason: "known-bad user agent", Action: ActionBlock}
		}
	}

	path := strings.ToLower(req.Path)
	for _, bad := range d.opts.BadPaths {
		if bad != "" && strings.Contains(path, strings.ToLower(bad)) {
			return Assessment{Suspicious: true, Reason: "known-bad path probe", Action: ActionBlock}
		}
	}

	if d.prober != nil {
		fp := req.Fingerprint
		if fp == "" {
			fp = Fingerprint(req.IPAddress, req.UserAgent)
		}

		count, _, err := d.prober.Increment(ctx, "detect:fp:"+fp, d.opts.Window)
		if err != nil {
			d.logger.Error("fingerprint rate probe failed", slog.Any("error", err))
			return Assessment{Action: ActionNone}
		}

		if d.opts.BlockThreshold > 0 && count > int64(d.opts.BlockThreshold) {
			return Assessment{Suspicious: true, Reason: "fingerprint request rate", Action: ActionBlock}
		}
		if d.opts.FlagThreshold > 0 && count > int64(d.opts.FlagThreshold) {
			return Assessment{Suspicious: true, Reason: "fingerprint request rate", Action: ActionFlag}
		}
	}

	return Assessment{Action: ActionNone}
}

// Fingerprint derives a stable device identifier from IP and User-Agent.
func Fingerprint(ip, userAgent string) string {
	return hashString(fmt.Sprintf("%s:%s", ip, userAgent))
}
