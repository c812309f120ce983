package router

import (
	"strings"

	"github.com/mattn/go-shellwords"
)

// ParseText builds a trigger from a chat message. Messages starting with a
// slash are commands; "/lock@mybot a b" yields name "lock" and args [a b].
// Anything else is free text, which the router may still promote to a
// command when its first word is a known keyword.
func ParseText(sender, chat int64, messageID int, text string) Trigger {
	t := Trigger{
		Sender:    sender,
		Chat:      chat,
		Kind:      KindText,
		Raw:       text,
		MessageID: messageID,
	}
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "/") {
		return t
	}
	name, args := splitCommand(strings.TrimPrefix(trimmed, "/"))
	if name == "" {
		return t
	}
	t.Kind = KindCommand
	t.Name = name
	t.Args = args
	return t
}

// ParseButton builds a trigger from an inline keyboard callback
func ParseButton(sender, chat int64, messageID int, data string) Trigger {
	return Trigger{
		Sender:    sender,
		Chat:      chat,
		Kind:      KindButton,
		Name:      strings.ToLower(strings.TrimSpace(data)),
		Raw:       data,
		MessageID: messageID,
	}
}

// splitCommand separates the keyword from its arguments. Arguments follow
// shell quoting so paths with spaces can be written as "my file.txt".
func splitCommand(text string) (string, []string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}

	head, rest, _ := strings.Cut(text, " ")
	head, _, _ = strings.Cut(head, "@")
	name := strings.ToLower(head)

	rest = strings.TrimSpace(rest)
	if rest == "" {
		return name, nil
	}
	args, err := shellwords.Parse(rest)
	if err != nil {
		// Unbalanced quotes: fall back to plain fields
		args = strings.Fields(rest)
	}
	return name, args
}
