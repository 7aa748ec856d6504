package config

import "errors"

// normalizeJSONC blanks comments and trailing commas in place so the result is
// plain JSON with the same byte offsets as the input. Newlines inside block
// comments are kept so line numbers survive.
func normalizeJSONC(content string) (string, error) {
	buf := []byte(content)
	pendingComma := -1

	for i := 0; i < len(buf); {
		c := buf[i]
		switch {
		case c == '"':
			i = skipString(buf, i)
			pendingComma = -1
		case c == '/' && i+1 < len(buf) && buf[i+1] == '/':
			for i < len(buf) && buf[i] != '\n' && buf[i] != '\r' {
				buf[i] = ' '
				i++
			}
		case c == '/' && i+1 < len(buf) && buf[i+1] == '*':
			end := -1
			for j := i + 2; j+1 < len(buf); j++ {
				if buf[j] == '*' && buf[j+1] == '/' {
					end = j + 2
					break
				}
			}
			if end < 0 {
				return "", errors.New("unterminated block comment in JSONC")
			}
			for ; i < end; i++ {
				if !isJSONWhitespace(buf[i]) {
					buf[i] = ' '
				}
			}
		case c == ',':
			pendingComma = i
			i++
		case c == '}' || c == ']':
			if pendingComma >= 0 {
				buf[pendingComma] = ' '
			}
			pendingComma = -1
			i++
		case isJSONWhitespace(c):
			i++
		default:
			pendingComma = -1
			i++
		}
	}
	return string(buf), nil
}

// skipString returns the index just past the string literal starting at buf[start].
func skipString(buf []byte, start int) int {
	for i := start + 1; i < len(buf); i++ {
		switch buf[i] {
		case '\\':
			i++
		case '"':
			return i + 1
		}
	}
	return len(buf)
}

func isJSONWhitespace(ch byte) bool {
	return ch == ' ' || ch == '\n' || ch == '\r' || ch == '\t'
}
