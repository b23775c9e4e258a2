package intent

import "fmt"

// MessageKey identifies a canned assistant reply.
type MessageKey string

const (
	MsgHelp          MessageKey = "help"
	MsgFallback      MessageKey = "fallback"
	MsgCopied        MessageKey = "copied"
	MsgNothingToCopy MessageKey = "nothing_to_copy"
	MsgDayEntries    MessageKey = "day_entries"
	MsgNoEntries     MessageKey = "no_entries"
	MsgTryLater      MessageKey = "try_later"
	MsgWeekHours     MessageKey = "week_hours"
)

var messages = map[Language]map[MessageKey]string{
	English: {
		MsgHelp:          "I can copy yesterday's entries to today, show today's or yesterday's entries, and answer questions about your hours this week.",
		MsgFallback:      "Sorry, I did not understand that. Ask me about your hours or type \"help\".",
		MsgCopied:        "Copied %d entries from %s to today as drafts.",
		MsgNothingToCopy: "There was nothing to copy from the previous days.",
		MsgDayEntries:    "You have %d entries totalling %s hours on %s.",
		MsgNoEntries:     "No entries on %s.",
		MsgTryLater:      "The assistant is unavailable right now, please try again later.",
		MsgWeekHours:     "This week you have logged %s of %s expected hours.",
	},
	Finnish: {
		MsgHelp:          "Voin kopioida eilisen kirjaukset tälle päivälle, näyttää tämän päivän tai eilisen kirjaukset ja vastata kysymyksiin tämän viikon tunneistasi.",
		MsgFallback:      "Anteeksi, en ymmärtänyt. Kysy tunneistasi tai kirjoita \"ohje\".",
		MsgCopied:        "Kopioitiin %d kirjausta päivältä %s tälle päivälle luonnoksina.",
		MsgNothingToCopy: "Edellisiltä päiviltä ei löytynyt kopioitavaa.",
		MsgDayEntries:    "Sinulla on %d kirjausta, yhteensä %s tuntia, päivälle %s.",
		MsgNoEntries:     "Ei kirjauksia päivälle %s.",
		MsgTryLater:      "Avustaja ei ole juuri nyt käytettävissä, yritä myöhemmin uudelleen.",
		MsgWeekHours:     "Olet kirjannut tällä viikolla %s / %s odotetusta tunnista.",
	},
	Swedish: {
		MsgHelp:          "Jag kan kopiera gårdagens poster till idag, visa dagens eller gårdagens poster och svara på frågor om dina timmar denna vecka.",
		MsgFallback:      "Förlåt, jag förstod inte. Fråga om dina timmar eller skriv \"hjälp\".",
		MsgCopied:        "Kopierade %d poster från %s till idag som utkast.",
		MsgNothingToCopy: "Det fanns inget att kopiera från de föregående dagarna.",
		MsgDayEntries:    "Du har %d poster på totalt %s timmar den %s.",
		MsgNoEntries:     "Inga poster den %s.",
		MsgTryLater:      "Assistenten är inte tillgänglig just nu, försök igen senare.",
		MsgWeekHours:     "Den här veckan har du registrerat %s av %s förväntade timmar.",
	},
}

// Message formats a canned reply, falling back to English.
func Message(lang Language, key MessageKey, args ...any) string {
	table, ok := messages[lang]
	if !ok {
		table = messages[English]
	}
	format, ok := table[key]
	if !ok {
		format = messages[English][key]
	}
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
