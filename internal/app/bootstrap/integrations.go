package bootstrap

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/wolfman30/guesthub/internal/channels/telegram"
	appconfig "github.com/wolfman30/guesthub/internal/config"
	"github.com/wolfman30/guesthub/internal/dialog"
	"github.com/wolfman30/guesthub/internal/intent"
	"github.com/wolfman30/guesthub/internal/notify"
	"github.com/wolfman30/guesthub/internal/pms"
	"github.com/wolfman30/guesthub/pkg/logging"
)

// BuildPMSClient returns the property system client. USE_STATIC_PMS selects
// the in-process demo inventory; otherwise Bnovo is used, and an
// unconfigured Bnovo client answers every call with pms.ErrNotConfigured.
func BuildPMSClient(cfg *appconfig.Config, logger *logging.Logger) pms.Client {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.UseStaticPMS {
		logger.Warn("using static property inventory")
		return pms.NewStaticClient(nil)
	}
	client := pms.NewBnovoClient(pms.BnovoConfig{
		BaseURL:         cfg.BnovoBaseURL,
		AccountID:       cfg.BnovoAccountID,
		APIKey:          cfg.BnovoAPIKey,
		HotelID:         cfg.BnovoHotelID,
		Timeout:         cfg.BnovoTimeout,
		DefaultCurrency: cfg.DefaultCurrency,
	}, logger)
	if !client.Configured() {
		logger.Warn("bnovo is not configured; lookups will apologise to guests")
	}
	return client
}

// BuildTelegramSender logs in to the Bot API. It returns nil without error
// when no token is configured.
func BuildTelegramSender(cfg *appconfig.Config, logger *logging.Logger) (*telegram.Sender, error) {
	token := strings.TrimSpace(cfg.TelegramBotToken)
	if token == "" {
		return nil, nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: telegram login: %w", err)
	}
	if logger != nil {
		logger.Info("telegram bot authorised", "username", bot.Self.UserName)
	}
	return telegram.NewSender(bot, logger), nil
}

// BuildEmailSender returns the SendGrid sender, or nil when email is off. In
// development a recipient without an API key gets a logging stub.
func BuildEmailSender(cfg *appconfig.Config, logger *logging.Logger) notify.EmailSender {
	sender := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger)
	if sender != nil {
		return sender
	}
	if cfg.Env == "development" && strings.TrimSpace(cfg.ReportEmailTo) != "" {
		return notify.NewStubEmailSender(logger)
	}
	return nil
}

// BuildDialogData loads the intent table and the house catalog.
func BuildDialogData(cfg *appconfig.Config) (*intent.Table, *dialog.HouseCatalog, error) {
	table, err := intent.LoadTable(cfg.IntentsFile)
	if err != nil {
		return nil, nil, err
	}
	catalog, err := dialog.LoadHouseCatalog(cfg.HouseCatalogFile)
	if err != nil {
		return nil, nil, err
	}
	return table, catalog, nil
}
