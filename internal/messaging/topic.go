package messaging

import "strings"

// MatchBindingKey reports whether a routing key matches a topic binding
// pattern. Patterns use AMQP topic-exchange semantics over dot-separated
// words: `*` matches exactly one word, `#` matches zero or more words.
func MatchBindingKey(pattern, key string) bool {
	if pattern == key {
		return true
	}
	return matchWords(strings.Split(pattern, "."), strings.Split(key, "."))
}

func matchWords(pattern, words []string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case "#":
			if len(pattern) == 1 {
				return true
			}
			for i := 0; i <= len(words); i++ {
				if matchWords(pattern[1:], words[i:]) {
					return true
				}
			}
			return false
		case "*":
			if len(words) == 0 {
				return false
			}
		default:
			if len(words) == 0 || pattern[0] != words[0] {
				return false
			}
		}
		pattern = pattern[1:]
		words = words[1:]
	}
	return len(words) == 0
}
