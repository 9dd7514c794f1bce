package handlers

import (
	"context"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"jewelshot/internal/middleware"
)

const (
	msgRateLimited        = "Too many requests, retry in %d seconds"
	msgInsufficientCredit = "Not enough credit: %d required, %d available"
	msgUnauthorized       = "Authentication required"
	msgNotFound           = "Resource not found"
	msgInvalidPayload     = "Invalid request payload"
	msgUnavailable        = "Service temporarily unavailable, please retry"
	msgInternal           = "Internal server error"
	msgNoResults          = "No completed results to download yet"
)

func init() {
	id := language.Indonesian
	for key, text := range map[string]string{
		msgRateLimited:        "Terlalu banyak permintaan, coba lagi dalam %d detik",
		msgInsufficientCredit: "Kredit tidak cukup: butuh %d, tersedia %d",
		msgUnauthorized:       "Autentikasi diperlukan",
		msgNotFound:           "Data tidak ditemukan",
		msgInvalidPayload:     "Payload permintaan tidak valid",
		msgUnavailable:        "Layanan sementara tidak tersedia, silakan coba lagi",
		msgInternal:           "Terjadi kesalahan pada server",
		msgNoResults:          "Belum ada hasil yang selesai untuk diunduh",
	} {
		_ = message.SetString(id, key, text)
	}
}

func translate(ctx context.Context, key string, args ...any) string {
	tag := language.Make(middleware.LocaleFromContext(ctx))
	return message.NewPrinter(tag).Sprintf(key, args...)
}
