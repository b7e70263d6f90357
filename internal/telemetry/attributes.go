// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by all spans.
const (
	SessionIDKey     = "session.id"
	SessionKindKey   = "session.kind"
	SessionResultKey = "session.result"
	SessionReasonKey = "session.reason"
	SessionJoinedKey = "session.joined"

	AttemptSeqKey     = "attempt.seq"
	AttemptMethodKey  = "attempt.method"
	AttemptOutcomeKey = "attempt.outcome"

	PeerNameKey    = "peer.name"
	PeerAddressKey = "peer.address"

	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// SessionAttributes describes a session span.
func SessionAttributes(id, kind, peerName, peerAddress string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(SessionIDKey, id),
		attribute.String(SessionKindKey, kind),
		attribute.String(PeerNameKey, peerName),
		attribute.String(PeerAddressKey, peerAddress),
	}
}

// ResultAttributes describes how a session ended.
func ResultAttributes(result, reason string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(SessionResultKey, result)}
	if reason != "" {
		attrs = append(attrs, attribute.String(SessionReasonKey, reason))
	}
	return attrs
}

// AttemptAttributes describes one attempt span.
func AttemptAttributes(seq int, method string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttemptSeqKey, seq),
		attribute.String(AttemptMethodKey, method),
	}
}

// OutcomeAttributes describes the verdict of an attempt.
func OutcomeAttributes(outcome, failureKind string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(AttemptOutcomeKey, outcome)}
	if failureKind != "" {
		attrs = append(attrs, attribute.String(ErrorTypeKey, failureKind))
	}
	return attrs
}
