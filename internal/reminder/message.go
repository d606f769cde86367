package reminder

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/internal/appointments"
)

// InstitutionalMessage is the canned reply for senders with no active
// reminder conversation.
const InstitutionalMessage = `🤖 Olá! Aqui é a Click Saúde Agendamentos.

Este número é utilizado exclusivamente para envio de lembretes de consultas e confirmação de presença.

📌 No momento, ainda não somos um chatbot completo, mas estamos trabalhando para oferecer mais funcionalidades em breve, como:

Reagendamento automático

Suporte direto

Dúvidas frequentes

Enquanto isso, se precisar de ajuda, entre em contato diretamente com a clínica.
Agradecemos a compreensão! 💙`

// ReinforcementMessage asks the patient to answer SIM or NÃO after an
// unrecognized reply.
const ReinforcementMessage = `😅 Opa, não entendi sua resposta!

Por favor, confirme sua presença na consulta respondendo com uma das opções abaixo:

✅ SIM – Estarei presente
❌ NÃO – Desejo remarcar ou cancelar

Assim conseguimos organizar melhor os atendimentos. Obrigado! 💙`

// ConfirmationReply acknowledges a confirmed appointment.
const ConfirmationReply = "✅ Sua presença foi confirmada! Nos vemos na consulta."

// CancellationReply acknowledges a cancellation and points at the
// rescheduling page.
func CancellationReply(rescheduleURL string) string {
	return "❌ Consulta cancelada. Se quiser reagendar, acesse: " + rescheduleURL
}

// CleanPhone strips everything but digits.
func CleanPhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FormatPhoneNumber normalizes a patient phone to digits with the country
// code prefixed. Numbers already carrying the prefix pass through.
func FormatPhoneNumber(phone, countryCode string) string {
	cleaned := CleanPhone(phone)
	if strings.HasPrefix(cleaned, countryCode) {
		return cleaned
	}
	return countryCode + cleaned
}

// ChatAddress converts a digits-only phone to the chat address form.
func ChatAddress(phone string) string {
	if strings.HasSuffix(phone, "@c.us") {
		return phone
	}
	return phone + "@c.us"
}

// PhoneFromChatAddress strips the chat suffix and any remaining non-digits.
func PhoneFromChatAddress(from string) string {
	return CleanPhone(strings.TrimSuffix(from, "@c.us"))
}

var weekdaysPT = map[time.Weekday]string{
	time.Sunday:    "domingo",
	time.Monday:    "segunda-feira",
	time.Tuesday:   "terça-feira",
	time.Wednesday: "quarta-feira",
	time.Thursday:  "quinta-feira",
	time.Friday:    "sexta-feira",
	time.Saturday:  "sábado",
}

var monthsPT = map[time.Month]string{
	time.January:   "janeiro",
	time.February:  "fevereiro",
	time.March:     "março",
	time.April:     "abril",
	time.May:       "maio",
	time.June:      "junho",
	time.July:      "julho",
	time.August:    "agosto",
	time.September: "setembro",
	time.October:   "outubro",
	time.November:  "novembro",
	time.December:  "dezembro",
}

// BuildReminderMessage renders the pt-BR reminder text for one appointment.
// The address line is omitted when the professional has no address on file.
func BuildReminderMessage(appt *appointments.Appointment) string {
	when := appt.ScheduledAt

	var b strings.Builder
	fmt.Fprintf(&b, "👋 Olá, %s!\n\n", appt.PatientName)
	fmt.Fprintf(&b, "⏰ Este é um lembrete da sua consulta com Dr(a). *%s*\n\n", appt.ProfessionalName)
	fmt.Fprintf(&b, "📆 amanhã, *%s*, *%02d de %s de %d*\n", weekdaysPT[when.Weekday()], when.Day(), monthsPT[when.Month()], when.Year())
	fmt.Fprintf(&b, "🕗 *%02d:%02d*\n", when.Hour(), when.Minute())
	if appt.ProfessionalAddress != "" {
		fmt.Fprintf(&b, "📍 https://maps.google.com/?q=%s\n", url.QueryEscape(appt.ProfessionalAddress))
	}
	b.WriteString("\nCaso precise de mais informações, estamos à disposição.")
	return b.String()
}
