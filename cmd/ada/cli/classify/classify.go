// Package classify maps session errors to a retry class. The class decides
// whether the harness retries, how long it backs off, and whether it halts.
package classify

import (
	"strings"
)

// Class is an error category with an attached retry policy.
type Class string

const (
	Transient  Class = "transient"  // network flakes, 5xx
	RateLimit  Class = "rate_limit" // 429, quota exceeded
	AgentCrash Class = "agent_crash"
	Timeout    Class = "timeout" // stall or wall clock
	Billing    Class = "billing" // out of credit; halts the harness
	Auth       Class = "auth"    // bad or expired credentials; halts
	Tooling    Class = "tooling" // missing binary or broken toolchain
	Unknown    Class = "unknown"
)

// Decision is what the scheduler should do about an error class.
type Decision struct {
	Retry bool
	// MaxAttempts limits retries for this class; 0 means the policy's
	// global budget applies.
	MaxAttempts int
	// Halt stops the whole harness, not just the feature.
	Halt bool
	// LongBackoff selects the rate-limit base delay.
	LongBackoff bool
}

// Policy returns the retry decision for a class.
func (c Class) Policy() Decision {
	switch c {
	case Transient, AgentCrash, Timeout:
		return Decision{Retry: true}
	case RateLimit:
		return Decision{Retry: true, LongBackoff: true}
	case Billing, Auth:
		return Decision{Halt: true}
	case Tooling:
		return Decision{Retry: true, MaxAttempts: 1}
	default:
		return Decision{Retry: true, MaxAttempts: 1}
	}
}

// matcher maps substrings (lowercased) to a class. Order matters: the first
// match wins, so the more specific classes come first.
var matchers = []struct {
	class Class
	subs  []string
}{
	{Billing, []string{
		"credit balance", "billing", "payment required", "insufficient credit",
		"402",
	}},
	{Auth, []string{
		"401", "403", "unauthorized", "forbidden", "invalid api key",
		"authentication", "api key not found", "permission denied",
	}},
	{RateLimit, []string{
		"429", "rate limit", "rate_limit", "too many requests", "quota",
		"overloaded",
	}},
	{Timeout, []string{
		"timed out", "timeout", "deadline exceeded", "stalled",
	}},
	{Tooling, []string{
		"executable file not found", "command not found", "no such file or directory",
		"not recognized as an internal or external command",
	}},
	{AgentCrash, []string{
		"exit status", "signal: killed", "signal: segmentation",
		"broken pipe", "process exited", "stream closed unexpectedly",
	}},
	{Transient, []string{
		"connection refused", "connection reset", "eof", "500", "502", "503",
		"504", "internal server error", "bad gateway", "service unavailable",
		"temporary failure", "no such host", "tls handshake",
	}},
}

// Error classifies an error by its text. Nil errors classify as Unknown;
// callers should not classify success.
func Error(err error) Class {
	if err == nil {
		return Unknown
	}
	return Text(err.Error())
}

// Text classifies an error message.
func Text(msg string) Class {
	lower := strings.ToLower(msg)
	for _, m := range matchers {
		for _, sub := range m.subs {
			if strings.Contains(lower, sub) {
				return m.class
			}
		}
	}
	return Unknown
}
