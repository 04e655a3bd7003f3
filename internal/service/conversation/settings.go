package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"shopchat/internal/models"
	"shopchat/internal/redis"
)

const settingsCachePrefix = "shopchat:settings:"

// Settings returns the shop's routing and widget configuration. Lookups are
// cached in redis with a short TTL and collapsed through singleflight so a
// burst of messages from one shop does one database read. Shops that never
// saved anything get defaults.
func (s *Service) Settings(ctx context.Context, shop string) (*models.ShopSettings, error) {
	if shop == "" {
		return nil, errors.New("shop is required")
	}
	cacheKey := settingsCachePrefix + shop

	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, cacheKey); err == nil {
			var settings models.ShopSettings
			if err := json.Unmarshal([]byte(raw), &settings); err == nil {
				return &settings, nil
			}
		} else if !errors.Is(err, redis.ErrCacheMiss) {
			log.Warn().Err(err).Str("shop", shop).Msg("settings cache read failed")
		}
	}

	v, err, _ := s.sf.Do(cacheKey, func() (interface{}, error) {
		settings, err := s.loadSettings(ctx, shop)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if raw, err := json.Marshal(settings); err == nil {
				if err := s.cache.Set(ctx, cacheKey, raw, s.settingsTTL); err != nil {
					log.Warn().Err(err).Str("shop", shop).Msg("settings cache write failed")
				}
			}
		}
		return settings, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.ShopSettings), nil
}

func (s *Service) loadSettings(ctx context.Context, shop string) (*models.ShopSettings, error) {
	var settings models.ShopSettings
	err := s.db.QueryRowContext(ctx,
		`SELECT shop, plan, custom_webhook_url, webhook_bearer, storefront_token, bot_name, default_language, updated_at
		 FROM shop_settings WHERE shop = ?`,
		shop,
	).Scan(&settings.Shop, &settings.Plan, &settings.CustomWebhookURL, &settings.WebhookBearer,
		&settings.StorefrontToken, &settings.BotName, &settings.DefaultLanguage, &settings.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DefaultSettings(shop), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "load settings")
	}
	return &settings, nil
}

// SaveSettings upserts the shop's settings and invalidates the cache entry.
func (s *Service) SaveSettings(ctx context.Context, settings *models.ShopSettings) error {
	if settings == nil || settings.Shop == "" {
		return errors.New("settings with shop are required")
	}
	now := time.Now().UTC()
	if err := s.upsertSettings(ctx, settings, now); err != nil {
		return err
	}
	settings.UpdatedAt = now
	if s.cache != nil {
		if err := s.cache.Del(ctx, settingsCachePrefix+settings.Shop); err != nil {
			log.Warn().Err(err).Str("shop", settings.Shop).Msg("settings cache invalidation failed")
		}
	}
	return nil
}

// upsertSettings uses update-then-insert instead of an upsert clause; the
// sqlite and mysql drivers disagree on upsert syntax.
func (s *Service) upsertSettings(ctx context.Context, settings *models.ShopSettings, now time.Time) error {
	res, err := s.updateSettings(ctx, settings, now)
	if err != nil {
		return errors.Wrap(err, "save settings")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "save settings")
	}
	if affected > 0 {
		return nil
	}
	_, insErr := s.db.ExecContext(ctx,
		`INSERT INTO shop_settings (shop, plan, custom_webhook_url, webhook_bearer, storefront_token, bot_name, default_language, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		settings.Shop, settings.Plan, settings.CustomWebhookURL, settings.WebhookBearer,
		settings.StorefrontToken, settings.BotName, settings.DefaultLanguage, now,
	)
	if insErr == nil {
		return nil
	}
	// The insert can lose two ways: a concurrent save won the race, or mysql
	// reported zero affected rows for a value-identical update. Repeating the
	// update settles both.
	if _, err := s.updateSettings(ctx, settings, now); err != nil {
		return errors.Wrap(insErr, "save settings")
	}
	return nil
}

func (s *Service) updateSettings(ctx context.Context, settings *models.ShopSettings, now time.Time) (sql.Result, error) {
	return s.db.ExecContext(ctx,
		`UPDATE shop_settings SET
			plan = ?,
			custom_webhook_url = ?,
			webhook_bearer = ?,
			storefront_token = ?,
			bot_name = ?,
			default_language = ?,
			updated_at = ?
		 WHERE shop = ?`,
		settings.Plan, settings.CustomWebhookURL, settings.WebhookBearer,
		settings.StorefrontToken, settings.BotName, settings.DefaultLanguage, now, settings.Shop,
	)
}
