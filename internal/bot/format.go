package bot

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"market-hunter/internal/database"
	"market-hunter/internal/kafka"
)

const helpText = `📚 Доступні команди:

🏠 Основні:
/start - почати роботу з ботом
/help - показати цю довідку

🔍 Монітори:
/list - показати мої монітори
/find - останні знахідки монітора
/find [номер] - знахідки монітора з номером
/refresh - перевірити всі активні монітори зараз
/refresh [номер] - перевірити монітор з номером

Монітори створюються через застосунок, а я надсилаю сповіщення про нові оголошення.`

func startText(chatID int64) string {
	return fmt.Sprintf(`👋 Привіт! Я бот для моніторингу оголошень.

🔍 Що я вмію:
• Показувати твої монітори
• Надсилати сповіщення про нові оголошення

🔗 Твій Telegram ID: %d
Додай його в профілі застосунку, щоб отримувати сповіщення.

/help - показати всі команди`, chatID)
}

func notLinkedText(telegramID int64) string {
	return fmt.Sprintf("🔗 Цей чат ще не прив'язаний до акаунта.\n\nДодай Telegram ID %d в профілі застосунку.", telegramID)
}

func formatPriceRange(min, max decimal.NullDecimal) string {
	switch {
	case min.Valid && max.Valid:
		return fmt.Sprintf("%s - %s грн", min.Decimal.String(), max.Decimal.String())
	case min.Valid:
		return fmt.Sprintf("від %s грн", min.Decimal.String())
	case max.Valid:
		return fmt.Sprintf("до %s грн", max.Decimal.String())
	default:
		return "без обмежень"
	}
}

func formatPrice(p decimal.NullDecimal) string {
	if !p.Valid {
		return "ціна не вказана"
	}
	return p.Decimal.String() + " грн"
}

func formatMonitors(monitors []*database.Monitor) string {
	if len(monitors) == 0 {
		return "📝 У тебе поки що немає моніторів."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📋 Твої монітори (%d):\n\n", len(monitors))

	for i, m := range monitors {
		status := "🟢"
		if !m.IsActive {
			status = "🔴"
		}

		fmt.Fprintf(&sb, "%s %d. %s\n", status, i+1, m.Query)
		if m.Marketplace != "" {
			fmt.Fprintf(&sb, "   🛒 Майданчик: %s\n", m.Marketplace)
		}
		fmt.Fprintf(&sb, "   💰 Ціна: %s\n", formatPriceRange(m.MinPrice, m.MaxPrice))
		if m.City != "" {
			fmt.Fprintf(&sb, "   🏙 Місто: %s\n", m.City)
		}
		fmt.Fprintf(&sb, "   ⏰ Кожні %d с\n\n", m.IntervalSeconds)
	}

	sb.WriteString("🟢 активний | 🔴 зупинений")
	return sb.String()
}

func formatListings(query string, listings []*database.Listing) string {
	if len(listings) == 0 {
		return "😔 Оголошень поки не знайдено"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📋 %s - останні знахідки:\n\n", query)
	for i, l := range listings {
		if i >= shownListings {
			sb.WriteString("...\n")
			break
		}
		fmt.Fprintf(&sb, "%d. %s\n💰 %s\n📍 %s\n🔗 %s\n\n", i+1, l.Title, formatPrice(l.Price), l.Location, l.URL)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatNewProducts(event kafka.NewProductsEvent) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🆕 %s - нових оголошень: %d\n\n", event.Query, len(event.Products))

	for i, p := range event.Products {
		if i >= shownListings {
			fmt.Fprintf(&sb, "... і ще %d оголошень\n", len(event.Products)-shownListings)
			break
		}
		fmt.Fprintf(&sb, "%d. %s\n💰 %s\n", i+1, p.Title, formatPrice(p.Price))
		if p.Location != "" {
			fmt.Fprintf(&sb, "📍 %s\n", p.Location)
		}
		fmt.Fprintf(&sb, "🔗 %s\n\n", p.URL)
	}
	return strings.TrimRight(sb.String(), "\n")
}
