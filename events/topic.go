package events

import "strings"

// SplitTopic splits a fully qualified topic such as
// "//viper/mktdata/ticker/IBM Equity" into its service ("//viper/mktdata")
// and the path below it ("/ticker/IBM Equity").
func SplitTopic(topic string) (service, path string, ok bool) {
	if !strings.HasPrefix(topic, "//") {
		return "", topic, false
	}
	rest := topic[2:]
	first := strings.IndexByte(rest, '/')
	if first <= 0 {
		return "", topic, false
	}
	second := strings.IndexByte(rest[first+1:], '/')
	if second < 0 {
		return topic, "", true
	}
	cut := 2 + first + 1 + second
	return topic[:cut], topic[cut:], true
}

// QualifyTopic prefixes topic with service unless it already names one.
func QualifyTopic(service, topic string) string {
	if _, _, ok := SplitTopic(topic); ok {
		return topic
	}
	if !strings.HasPrefix(topic, "/") {
		topic = "/" + topic
	}
	return strings.TrimSuffix(service, "/") + topic
}
