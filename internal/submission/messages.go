package submission

import (
	"fmt"
	"net/http"
)

// User-facing messages of the result area.
const (
	MsgMissingFile   = "Помилка: Будь ласка, завантажте файл з кодом."
	MsgMissingAPIKey = "Помилка: Будь ласка, введіть API ключ."
	MsgParseFailure  = "Помилка: Не вдалося розібрати відповідь сервера як JSON."
	MsgNetworkError  = "Помилка мережі або виконання запиту."
	MsgCancelled     = "Запит скасовано."
	MsgInFlight      = "Запит уже виконується. Дочекайтеся відповіді."
)

var statusMessages = map[int]string{
	http.StatusBadRequest:          "Помилка 400: Неправильний запит.",
	http.StatusUnauthorized:        "Помилка 401: Неправильний або відсутній API ключ. Доступ заборонено.",
	http.StatusForbidden:           "Помилка 403: API ключ не має дозволу на цю операцію.",
	http.StatusInternalServerError: "Помилка 500: Внутрішня помилка сервера.",
}

// StatusMessage maps a non-2xx status to its message. The response body is never consulted.
func StatusMessage(code int, statusText string) string {
	if msg, ok := statusMessages[code]; ok {
		return msg
	}
	return fmt.Sprintf("Помилка %d: %s", code, statusText)
}
