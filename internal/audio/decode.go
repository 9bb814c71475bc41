package audio

import "fmt"

type signalAction uint8

const (
	actionAdded signalAction = iota + 1
	actionChanged
	actionRemoved
)

type signalKind struct {
	category Category
	action   signalAction
}

// signalKinds maps daemon signal member names to category and action,
// e.g. "OutputStreamRemoved" -> (output_stream, removed).
var signalKinds = func() map[string]signalKind {
	m := make(map[string]signalKind, len(AllCategories)*3)
	for _, c := range AllCategories {
		p := c.MemberPrefix()
		m[p+"Added"] = signalKind{c, actionAdded}
		m[p+"Changed"] = signalKind{c, actionChanged}
		m[p+"Removed"] = signalKind{c, actionRemoved}
	}
	return m
}()

// SignalNames returns every signal member name the decoder understands.
func SignalNames() []string {
	names := make([]string, 0, len(signalKinds))
	for _, c := range AllCategories {
		p := c.MemberPrefix()
		names = append(names, p+"Added", p+"Changed", p+"Removed")
	}
	return names
}

// DecodeNotification converts a raw notification into an Event.
//
// Returns:
//   - Event: the decoded event
//   - bool: false if the kind is not an audio signal; the notification should be ignored
//   - error: wraps ErrMalformedPayload if the body could not be decoded
func DecodeNotification(n Notification) (Event, bool, error) {
	sk, ok := signalKinds[n.Kind]
	if !ok {
		return nil, false, nil
	}
	if n.Payload == nil {
		return nil, true, fmt.Errorf("%w: %s: empty body", ErrMalformedPayload, n.Kind)
	}

	if sk.action == actionRemoved {
		var index uint32
		if err := n.Payload.Decode(&index); err != nil {
			return nil, true, fmt.Errorf("%w: %s: %w", ErrMalformedPayload, n.Kind, err)
		}
		return Removed{Category: sk.category, Index: index}, true, nil
	}

	rec, err := decodeRecord(sk.category, n.Payload)
	if err != nil {
		return nil, true, fmt.Errorf("%w: %s: %w", ErrMalformedPayload, n.Kind, err)
	}
	if sk.action == actionAdded {
		return Added{Category: sk.category, Record: rec}, true, nil
	}
	return Changed{Category: sk.category, Record: rec}, true, nil
}

func decodeRecord(category Category, p Payload) (Entity, error) {
	switch {
	case category.IsDevice():
		var d Device
		if err := p.Decode(&d); err != nil {
			return nil, err
		}
		return d, nil
	case category.IsStream():
		var s Stream
		if err := p.Decode(&s); err != nil {
			return nil, err
		}
		return s, nil
	case category == CategoryCard:
		var c Card
		if err := p.Decode(&c); err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, ErrUnknownCategory
}
