package router

import (
	"fmt"
	"strings"

	"remindbot/internal/reminder"
)

const (
	msgParseError    = `❌ Не понимаю время. Примеры: "5 минут", "2 часа", "30 секунд"`
	msgSaveError     = "❌ Ошибка сохранения"
	msgLoadError     = "❌ Ошибка загрузки"
	msgDeleteError   = "❌ Ошибка удаления"
	msgNoReminders   = "📭 Нет активных напоминаний"
	msgNotFound      = "❌ Напоминание не найдено"
	msgRemindUsage   = "Использование: /remind <текст> через <время>\nНапример: /remind купить молоко через 5 минут"
	msgCancelUsage   = "Использование: /cancel <номер>\nНапример: /cancel 1"
	msgRateLimited   = "⏳ Слишком часто. Попробуйте через минуту"
	msgNotReady      = "⏳ Бот запускается, попробуйте чуть позже"
	msgBusy          = "⏳ Бот занят, попробуйте ещё раз"
	msgUnknown       = "❓ Неизвестная команда. Список команд: /help"
	msgInternal      = "❌ Внутренняя ошибка"
	listHeader       = "📋 Активные напоминания:\n\n"
	deliveryTemplate = "⏰ НАПОМИНАНИЕ #%d\n📝 %s"
)

func greeting(name string) string {
	if name == "" {
		name = "друг"
	}
	return fmt.Sprintf("👋 Привет, %s!\n\n", name) +
		"Я бот-напоминалка. Напиши:\n" +
		"/remind купить молоко через 5 минут\n" +
		"/remind позвонить через 2 часа\n" +
		"/remind таймер через 30 секунд\n\n" +
		"/list — список напоминаний\n" +
		"/cancel 1 — удалить напоминание №1"
}

func createdText(c reminder.Created, note string) string {
	return fmt.Sprintf("✅ Напоминание #%d создано\n📝 %s\n🕐 Через %s", c.ID, note, reminder.FormatSeconds(int64(c.Seconds)))
}

func listText(items []reminder.Pending) string {
	if len(items) == 0 {
		return msgNoReminders
	}
	parts := make([]string, 0, len(items))
	for _, p := range items {
		parts = append(parts, fmt.Sprintf("#%d — %s\n   ⏳ осталось %s", p.ID, p.Text, reminder.FormatSeconds(p.SecondsRemaining)))
	}
	return listHeader + strings.Join(parts, "\n\n")
}

func cancelledText(id int64) string {
	return fmt.Sprintf("🗑 Напоминание #%d удалено", id)
}

func tooManyText(max int) string {
	return fmt.Sprintf("❌ Слишком много активных напоминаний (максимум %d)", max)
}

func deliveryText(id int64, text string) string {
	return fmt.Sprintf(deliveryTemplate, id, text)
}
