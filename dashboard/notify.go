package dashboard

import (
	log "github.com/sirupsen/logrus"
)

// Variant selects how a notification is presented.
type Variant string

const (
	VariantDefault     Variant = "default"
	VariantDestructive Variant = "destructive"
)

// Notification is a transient user-facing message about one operation outcome.
type Notification struct {
	Title       string
	Description string
	Variant     Variant
}

// Notifier displays notifications.
type Notifier interface {
	Notify(Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// LogNotifier renders notifications as log entries; destructive ones are
// logged at error level.
type LogNotifier struct {
	Logger *log.Logger
}

func (l LogNotifier) Notify(n Notification) {
	entry := l.Logger.WithField("detail", n.Description)
	if n.Variant == VariantDestructive {
		entry.Error(n.Title)
		return
	}
	entry.Info(n.Title)
}

func success(title, description string) Notification {
	return Notification{Title: title, Description: description, Variant: VariantDefault}
}

func failure(title string, err error) Notification {
	return Notification{Title: title, Description: err.Error(), Variant: VariantDestructive}
}
