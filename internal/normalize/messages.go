package normalize

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// MessageKind enumerates the entry message templates.
type MessageKind int

const (
	FileChanged MessageKind = iota + 1
	FileCreated
	FileDeleted
	FileRenamed
	UserAdded
	UserDeleted
	UnexpectedEvent
)

func (k MessageKind) String() string {
	switch k {
	case FileChanged:
		return "file_changed"
	case FileCreated:
		return "file_created"
	case FileDeleted:
		return "file_deleted"
	case FileRenamed:
		return "file_renamed"
	case UserAdded:
		return "user_added"
	case UserDeleted:
		return "user_deleted"
	case UnexpectedEvent:
		return "unexpected_event"
	default:
		return "unknown"
	}
}

// templates are keyed by kind; the English text doubles as the catalog key.
var templates = map[MessageKind]string{
	FileChanged:     "[File system] - file \"%s\" was modified",
	FileCreated:     "[File system] - file \"%s\" was created",
	FileDeleted:     "[File system] - file \"%s\" was deleted",
	FileRenamed:     "[File system] - file \"%s\" was renamed to \"%s\"",
	UserAdded:       "User %s was created.",
	UserDeleted:     "User %s was deleted.",
	UnexpectedEvent: "Unexpected event.",
}

var russian = map[MessageKind]string{
	FileChanged:     "[Файловая система] - файл \"%s\" был изменен",
	FileCreated:     "[Файловая система] - файл \"%s\" был создан",
	FileDeleted:     "[Файловая система] - файл \"%s\" был удален",
	FileRenamed:     "[Файловая система] - файл \"%s\" был переименован в \"%s\"",
	UserAdded:       "Создан пользователь с именем %s.",
	UserDeleted:     "Удален пользователь с именем %s.",
	UnexpectedEvent: "Непредвиденное событие.",
}

var supported = []language.Tag{language.English, language.Russian}

// Messages formats entry messages in one language.
type Messages struct {
	tag     language.Tag
	printer *message.Printer
}

// NewMessages builds the message catalog and selects the closest supported
// language to lang. An empty lang selects English.
func NewMessages(lang string) (*Messages, error) {
	tag := language.English
	if lang != "" {
		requested, err := language.Parse(lang)
		if err != nil {
			return nil, fmt.Errorf("parse language %q: %w", lang, err)
		}
		_, idx, _ := language.NewMatcher(supported).Match(requested)
		tag = supported[idx]
	}

	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for kind, key := range templates {
		if err := b.SetString(language.English, key, key); err != nil {
			return nil, fmt.Errorf("catalog %s/en: %w", kind, err)
		}
		if err := b.SetString(language.Russian, key, russian[kind]); err != nil {
			return nil, fmt.Errorf("catalog %s/ru: %w", kind, err)
		}
	}

	return &Messages{
		tag:     tag,
		printer: message.NewPrinter(tag, message.Catalog(b)),
	}, nil
}

// Language returns the selected language.
func (m *Messages) Language() language.Tag {
	return m.tag
}

// Format renders the template for kind. Unknown kinds render as "".
func (m *Messages) Format(kind MessageKind, args ...interface{}) string {
	key, ok := templates[kind]
	if !ok {
		return ""
	}
	return m.printer.Sprintf(key, args...)
}
