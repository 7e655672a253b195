package matcher

import (
	"fmt"
	"strings"

	"github.com/onsi/gomega/format"
)

type ContainSegmentsInOrderMatcher struct {
	segments []string
}

// ContainSegmentsInOrder matches a string or []byte payload containing every
// segment, in the order given, possibly with other content in between.
func ContainSegmentsInOrder(expected ...string) *ContainSegmentsInOrderMatcher {
	return &ContainSegmentsInOrderMatcher{
		segments: expected,
	}
}

func (m *ContainSegmentsInOrderMatcher) Match(actual interface{}) (success bool, err error) {
	payload, err := toString(actual)
	if err != nil {
		return false, err
	}

	rest := payload
	for _, segment := range m.segments {
		index := strings.Index(rest, segment)
		if index < 0 {
			return false, nil
		}
		rest = rest[index+len(segment):]
	}
	return true, nil
}

func (m *ContainSegmentsInOrderMatcher) FailureMessage(actual interface{}) (message string) {
	return fmt.Sprintf("Expected\n%s\n%s\n%s", format.Object(actual, 1), "to contain, in order, the segments", m.expectedValues())
}

func (m *ContainSegmentsInOrderMatcher) NegatedFailureMessage(actual interface{}) (message string) {
	return fmt.Sprintf("Expected\n%s\n%s\n%s", format.Object(actual, 1), "not to contain, in order, the segments", m.expectedValues())
}

func (m *ContainSegmentsInOrderMatcher) expectedValues() string {
	return strings.Join(m.segments, ", ")
}

func toString(actual interface{}) (string, error) {
	switch value := actual.(type) {
	case string:
		return value, nil
	case []byte:
		return string(value), nil
	default:
		return "", fmt.Errorf("ContainSegmentsInOrder matcher expects a string or []byte, got %T", actual)
	}
}
