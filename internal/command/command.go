// Package command parses chat text into commands and routes them to handlers.
package command

import "strings"

// Command is one parsed chat message.
type Command struct {
	Name string
	Args []string
	Raw  string
}

// Parse splits raw on whitespace. The first token, lower-cased, is the
// command name and the rest are positional arguments. There is no quoting:
// handlers that need free text re-join the arguments they consume. ok is
// false for blank input.
func Parse(raw string) (cmd Command, ok bool) {
	trimmed := strings.TrimSpace(raw)
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return Command{}, false
	}
	return Command{
		Name: strings.ToLower(fields[0]),
		Args: fields[1:],
		Raw:  trimmed,
	}, true
}

// Rest joins the arguments from index i onwards with single spaces.
func (c Command) Rest(i int) string {
	if i >= len(c.Args) {
		return ""
	}
	return strings.Join(c.Args[i:], " ")
}

// Sub returns the lower-cased first argument, or "" when there is none.
func (c Command) Sub() string {
	if len(c.Args) == 0 {
		return ""
	}
	return strings.ToLower(c.Args[0])
}
