package api

import (
	"encoding/json"
	"fmt"
)

// Encode wraps a concrete protocol message into an Envelope and marshals it.
// The type switch is exhaustive over the closed message set; passing anything
// else is a programming error and is reported as such.
func Encode(msg any) ([]byte, error) {
	var typ MessageType

	switch msg.(type) {
	case Hello, *Hello:
		typ = MessageTypeHello
	case Attached, *Attached:
		typ = MessageTypeAttached
	case RequestLog, *RequestLog:
		typ = MessageTypeRequestLog
	case Log, *Log:
		typ = MessageTypeLog
	case RequestRuleset, *RequestRuleset:
		typ = MessageTypeRequestRuleset
	case Ruleset, *Ruleset:
		typ = MessageTypeRuleset
	case RulesetPatch, *RulesetPatch:
		typ = MessageTypeRulesetPatch
	case Event, *Event:
		typ = MessageTypeEvent
	case Error, *Error:
		typ = MessageTypeError
	default:
		return nil, fmt.Errorf("unsupported message type %T", msg)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", typ, err)
	}

	data, err := json.Marshal(Envelope{Type: typ, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}

	return data, nil
}

// Decode unmarshals an Envelope and returns the concrete message value.
// An unknown type tag is a decode-time error, not a fallthrough: the opaque
// game event path goes through the explicit MessageTypeEvent tag.
func Decode(data []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}

	// Декодируем payload в конкретный тип по тегу
	switch env.Type {
	case MessageTypeHello:
		return decodePayload[Hello](env)
	case MessageTypeAttached:
		return decodePayload[Attached](env)
	case MessageTypeRequestLog:
		return decodePayload[RequestLog](env)
	case MessageTypeLog:
		return decodePayload[Log](env)
	case MessageTypeRequestRuleset:
		return decodePayload[RequestRuleset](env)
	case MessageTypeRuleset:
		return decodePayload[Ruleset](env)
	case MessageTypeRulesetPatch:
		return decodePayload[RulesetPatch](env)
	case MessageTypeEvent:
		return decodePayload[Event](env)
	case MessageTypeError:
		return decodePayload[Error](env)
	default:
		return nil, fmt.Errorf("unknown message type %q", env.Type)
	}
}

// decodePayload декодирует payload envelope в тип T
func decodePayload[T any](env Envelope) (T, error) {
	var msg T
	if len(env.Payload) == 0 {
		return msg, fmt.Errorf("message %q has empty payload", env.Type)
	}
	if err := json.Unmarshal(env.Payload, &msg); err != nil {
		return msg, fmt.Errorf("failed to unmarshal %s payload: %w", env.Type, err)
	}
	return msg, nil
}
