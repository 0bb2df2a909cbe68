package stage

import "fmt"

// Scripted system copy that is not tied to a single stage prompt.

var nameAck = map[string]string{
	LocaleEsAR: "¡Un gusto, %s! ",
	LocaleEsES: "¡Un placer, %s! ",
	LocaleEn:   "Nice to meet you, %s! ",
}

var apology = map[string]string{
	LocaleEsAR: "Perdón, tuve un inconveniente para procesar eso. Probemos de nuevo con una de estas opciones.",
	LocaleEsES: "Perdona, he tenido un problema para procesar eso. Probemos de nuevo con una de estas opciones.",
	LocaleEn:   "Sorry, I ran into a problem processing that. Let's try again with one of these options.",
}

var escalationGuard = map[string]string{
	LocaleEsAR: "Ese paso puede ser riesgoso para tus datos o tu equipo, así que prefiero no guiarte por ahí. ¿Querés que lo vea un técnico humano?",
	LocaleEsES: "Ese paso puede ser arriesgado para tus datos o tu equipo, así que prefiero no guiarte por ahí. ¿Quieres que lo vea un técnico humano?",
	LocaleEn:   "That step could put your data or your device at risk, so I'd rather not walk you through it. Want a human technician to take a look?",
}

var ticketAck = map[string]string{
	LocaleEsAR: "¡Listo! Generé el ticket y un técnico te va a contactar. Guardá este número: ",
	LocaleEsES: "¡Listo! He generado el ticket y un técnico te contactará. Guarda este número: ",
	LocaleEn:   "Done! I created the ticket and a technician will contact you. Keep this number: ",
}

// Apology is the fixed, locale-appropriate reply used whenever a model turn
// cannot be recovered. The real failure cause is never part of it.
func Apology(locale string) string {
	if s, ok := apology[NormalizeLocale(locale)]; ok {
		return s
	}
	return apology[LocaleEsAR]
}

// EscalationGuard is the reply substituted when content policy blocks a
// model reply or redirects the turn into escalation.
func EscalationGuard(locale string) string {
	if s, ok := escalationGuard[NormalizeLocale(locale)]; ok {
		return s
	}
	return escalationGuard[LocaleEsAR]
}

// NameAck greets the user by the name just captured. Prepended to the next
// stage's prompt.
func NameAck(locale, name string) string {
	f, ok := nameAck[NormalizeLocale(locale)]
	if !ok {
		f = nameAck[LocaleEsAR]
	}
	return fmt.Sprintf(f, name)
}

// TicketAck prefixes the ticket id confirmation.
func TicketAck(locale string) string {
	if s, ok := ticketAck[NormalizeLocale(locale)]; ok {
		return s
	}
	return ticketAck[LocaleEsAR]
}
