package mqtt

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Topic limits from the MQTT 3.1.1 specification.
const (
	maxTopicLength = 65535

	levelSeparator  = "/"
	singleLevelWild = "+"
	multiLevelWild  = "#"
)

// ValidateTopic checks a topic name used for publishing.
// Topic names must be non-empty UTF-8 without wildcards or NUL.
func ValidateTopic(topic string) error {
	if err := validateCommon(topic); err != nil {
		return err
	}
	if strings.ContainsAny(topic, singleLevelWild+multiLevelWild) {
		return fmt.Errorf("%w: wildcards not allowed in topic name %q", ErrInvalidTopic, topic)
	}
	return nil
}

// ValidateFilter checks a topic filter used for subscribing.
//
// Wildcards must occupy a whole level; "#" may only be the last level.
func ValidateFilter(filter string) error {
	if err := validateCommon(filter); err != nil {
		return err
	}

	levels := strings.Split(filter, levelSeparator)
	for i, level := range levels {
		switch {
		case level == multiLevelWild:
			if i != len(levels)-1 {
				return fmt.Errorf("%w: %q must be the last level in %q", ErrInvalidTopic, multiLevelWild, filter)
			}
		case level == singleLevelWild:
		case strings.ContainsAny(level, singleLevelWild+multiLevelWild):
			return fmt.Errorf("%w: wildcard must occupy a whole level in %q", ErrInvalidTopic, filter)
		}
	}
	return nil
}

func validateCommon(s string) error {
	switch {
	case s == "":
		return fmt.Errorf("%w: empty", ErrInvalidTopic)
	case len(s) > maxTopicLength:
		return fmt.Errorf("%w: length %d exceeds %d bytes", ErrInvalidTopic, len(s), maxTopicLength)
	case !utf8.ValidString(s):
		return fmt.Errorf("%w: not valid UTF-8", ErrInvalidTopic)
	case strings.ContainsRune(s, 0):
		return fmt.Errorf("%w: contains NUL", ErrInvalidTopic)
	}
	return nil
}

// IsWildcard reports whether filter contains a wildcard level.
func IsWildcard(filter string) bool {
	return strings.ContainsAny(filter, singleLevelWild+multiLevelWild)
}

// Match reports whether topic matches filter.
//
// "+" matches exactly one level and "#" matches the remaining levels,
// including none ("a/#" matches "a"). Filters starting with a wildcard do not
// match topics starting with "$".
func Match(filter, topic string) bool {
	if filter == topic {
		return true
	}
	if strings.HasPrefix(topic, "$") && (strings.HasPrefix(filter, singleLevelWild) || strings.HasPrefix(filter, multiLevelWild)) {
		return false
	}

	fl := strings.Split(filter, levelSeparator)
	tl := strings.Split(topic, levelSeparator)

	for i, f := range fl {
		if f == multiLevelWild {
			return i == len(fl)-1
		}
		if i >= len(tl) {
			return false
		}
		if f != singleLevelWild && f != tl[i] {
			return false
		}
	}

	return len(fl) == len(tl)
}
