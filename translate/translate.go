// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

// Package translate formats operator-facing text for the simduino host.
package translate

import (
	"sync"

	"github.com/jeandeaual/go-locale"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	printer     *message.Printer
	printerOnce sync.Once
	fallback    = []string{"en-US"}
)

func load() {
	locales, err := locale.GetLocales()
	if err != nil || len(locales) == 0 {
		locales = fallback
	}

	printer = message.NewPrinter(message.MatchLanguage(locales...))
}

// From an en-US Sprintf() format, translate to string.
func From(key message.Reference, args ...any) string {
	printerOnce.Do(load)
	return printer.Sprintf(key, args...)
}

// Use replaces the active printer with one for the named language tag.
// Unknown tags fall back to en-US.
func Use(tag string) {
	printerOnce.Do(load)

	lang, err := language.Parse(tag)
	if err != nil {
		lang = language.AmericanEnglish
	}
	printer = message.NewPrinter(lang)
}
