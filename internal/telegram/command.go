package telegram

import "strings"

// Command is a parsed chat command such as "/profits BTC 0.5 CHF".
type Command struct {
	Name string
	Args []string
}

// ParseCommand splits a message into a command name and its arguments. The
// name is lowercased and stripped of its leading slash and any "@botname"
// suffix. ok is false when text is not a command.
func ParseCommand(text string) (cmd Command, ok bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return Command{}, false
	}
	name := strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	if name == "" {
		return Command{}, false
	}
	return Command{Name: strings.ToLower(name), Args: fields[1:]}, true
}

// Arg returns the i-th argument or "".
func (c Command) Arg(i int) string {
	if i < len(c.Args) {
		return c.Args[i]
	}
	return ""
}
