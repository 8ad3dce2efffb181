package telegram

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"termin-notifier/pkg/termin"
)

// FormatAvailability builds the notification sent when locations become
// newly available.
func FormatAvailability(available []termin.PollOutcome) string {
	var b strings.Builder
	b.WriteString("🎉 *Neue Termine verfügbar! / New Appointments Available!*\n\n")
	b.WriteString(fmt.Sprintf("Appointments available at %d location(s):\n\n", len(available)))

	names := make([]string, 0, len(available))
	for _, o := range available {
		names = append(names, o.LocationName)
	}
	sort.Strings(names)
	for _, name := range names {
		b.WriteString(fmt.Sprintf("✅ *%s*\n", name))
	}

	b.WriteString("\n📝 *How to book:*\n")
	b.WriteString("1. Go to: " + termin.BookingURL + "\n")
	b.WriteString("2. Find the Volkshochschule location mentioned above\n")
	b.WriteString("3. Click 'An diesem Standort einen Termin buchen'\n")
	b.WriteString("4. Select your appointment date\n\n")
	b.WriteString("⏰ *Book quickly before they're gone!*")
	return b.String()
}

// FormatStatusUpdate builds an operational status broadcast.
func FormatStatusUpdate(message, errDetail string) string {
	if errDetail != "" {
		return fmt.Sprintf("⚠️ Bot Status Update:\n%s\nError: %s", message, errDetail)
	}
	return fmt.Sprintf("ℹ️ Bot Status Update:\n%s", message)
}

// FormatCheckResult builds the reply to a manual /check command. Failures
// are always listed alongside any slots found, never dropped.
func FormatCheckResult(agg *termin.AggregateResult) string {
	var b strings.Builder

	if failed := agg.Failed(); len(failed) > 0 {
		b.WriteString("⚠️ Some locations could not be checked:\n")
		for i, o := range failed {
			if i >= 3 {
				b.WriteString(fmt.Sprintf("... and %d more\n", len(failed)-i))
				break
			}
			b.WriteString(fmt.Sprintf("%s: %s\n", o.LocationName, o.ErrorDetail))
		}
		b.WriteString("\n")
	}

	available := agg.Available()
	if len(available) == 0 {
		b.WriteString("❌ No appointments currently available at any VHS location")
		return b.String()
	}

	b.WriteString(fmt.Sprintf("✅ Found open slots at %d location(s):\n\n", len(available)))
	for _, o := range available {
		b.WriteString(fmt.Sprintf("📍 %s — %d slot(s)\n", o.LocationName, o.SlotCount))
	}
	b.WriteString("\n📝 Visit " + termin.BookingURL + " to book")
	return b.String()
}

// FormatSubscriberStatus builds the reply to /status.
func FormatSubscriberStatus(subscribed bool, total int, intervalMinutes int, last *termin.AggregateResult, now time.Time) string {
	if !subscribed {
		return "📊 *Status*\n" +
			"❌ Not subscribed to notifications\n" +
			"Use /subscribe to start receiving notifications"
	}

	var b strings.Builder
	b.WriteString("📊 *Status*\n")
	b.WriteString("✅ Subscribed to notifications\n")
	b.WriteString(fmt.Sprintf("👥 Total subscribers: %d\n", total))
	b.WriteString(fmt.Sprintf("🔄 Checking every %d minute(s)\n\n", intervalMinutes))

	if last == nil || len(last.Outcomes) == 0 {
		b.WriteString("_No checks completed yet_")
		return b.String()
	}

	b.WriteString("*Last checked:*\n")
	outcomes := make([]termin.PollOutcome, len(last.Outcomes))
	copy(outcomes, last.Outcomes)
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].LocationName < outcomes[j].LocationName })
	for _, o := range outcomes {
		name := o.LocationName
		// Truncate on runes: the registry names carry umlauts and a byte
		// slice could split one, producing invalid UTF-8 Telegram rejects.
		if runes := []rune(name); len(runes) > 30 {
			name = string(runes[:30]) + "..."
		}
		b.WriteString(fmt.Sprintf("• %s: %s\n", name, relativeTime(now.Sub(o.CheckedAt))))
	}
	return b.String()
}

func relativeTime(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
}

const welcomeMessage = "🤖 Welcome to the Einbürgerungstest Appointment Bot!\n\n" +
	"I will notify you when new appointments become available.\n\n" +
	"Commands:\n" +
	"/subscribe - Subscribe to notifications\n" +
	"/unsubscribe - Unsubscribe from notifications\n" +
	"/status - Check subscription status\n" +
	"/check - Manually check for appointments\n" +
	"/help - Show detailed help information"

const helpMessage = "📚 *Einbürgerungstest Bot Help*\n\n" +
	"*What this bot does:*\n" +
	"• Checks all 12 VHS locations in Berlin on a fixed interval\n" +
	"• Notifies you when appointments become available\n" +
	"• Shows which VHS locations have slots\n\n" +
	"*Commands:*\n" +
	"`/subscribe` - Start receiving notifications\n" +
	"`/unsubscribe` - Stop receiving notifications\n" +
	"`/status` - Shows if you're subscribed and when each location was last checked\n" +
	"`/check` - Manually check all locations right now\n" +
	"`/help` - Show this help message\n\n" +
	"*How to book when notified:*\n" +
	"1. Go to the booking page\n" +
	"2. Find the VHS location from the notification\n" +
	"3. Click 'An diesem Standort einen Termin buchen'\n" +
	"4. Select your appointment\n\n" +
	"⚡ *Tip:* Appointments go fast! Book immediately when notified."
