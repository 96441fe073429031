package domain

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMalformedLine возвращается при разборе строки не в формате журнала.
var ErrMalformedLine = errors.New("malformed log line")

// FormatLogLine сериализует запись в одну строку "[ts] sender: body\n".
// Перевод строки, возврат каретки и обратный слеш в теле экранируются,
// в имени отправителя дополнительно экранируется двоеточие.
func FormatLogLine(entry LogEntry) string {
	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(entry.Timestamp.UTC().Format(time.RFC3339Nano))
	b.WriteString("] ")
	escapeInto(&b, entry.SenderName, true)
	b.WriteString(": ")
	escapeInto(&b, entry.Body, false)
	b.WriteByte('\n')
	return b.String()
}

// ParseLogLine восстанавливает запись из строки журнала.
func ParseLogLine(line string) (LogEntry, error) {
	line = strings.TrimSuffix(line, "\n")
	if !strings.HasPrefix(line, "[") {
		return LogEntry{}, ErrMalformedLine
	}
	end := strings.Index(line, "] ")
	if end < 0 {
		return LogEntry{}, ErrMalformedLine
	}
	ts, err := time.Parse(time.RFC3339Nano, line[1:end])
	if err != nil {
		return LogEntry{}, fmt.Errorf("%w: timestamp: %v", ErrMalformedLine, err)
	}
	rest := line[end+2:]
	sep := senderEnd(rest)
	if sep < 0 {
		return LogEntry{}, ErrMalformedLine
	}
	return LogEntry{
		Timestamp:  ts,
		SenderName: unescape(rest[:sep]),
		Body:       unescape(rest[sep+2:]),
	}, nil
}

// CountLines считает строки, включая последнюю без завершающего перевода строки.
func CountLines(data []byte) int {
	if len(data) == 0 {
		return 0
	}
	n := bytes.Count(data, []byte{'\n'})
	if data[len(data)-1] != '\n' {
		n++
	}
	return n
}

func escapeInto(b *strings.Builder, s string, sender bool) {
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case ':':
			if sender {
				b.WriteString(`\:`)
			} else {
				b.WriteRune(r)
			}
		default:
			b.WriteRune(r)
		}
	}
}

// senderEnd ищет первое неэкранированное ": ".
func senderEnd(s string) int {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case ':':
			if i+1 < len(s) && s[i+1] == ' ' {
				return i
			}
		}
	}
	return -1
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case '\\', ':':
			b.WriteByte(s[i])
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
