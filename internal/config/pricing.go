package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PricingPolicy is the platform-wide revenue split and reservation policy.
type PricingPolicy struct {
	CreatorShare   decimal.Decimal
	ReservationTTL time.Duration
}

func DefaultPricingPolicy(cfg Config) (PricingPolicy, error) {
	share, err := decimal.NewFromString(strings.TrimSpace(cfg.CreatorShare))
	if err != nil {
		return PricingPolicy{}, fmt.Errorf("invalid PRICING_CREATOR_SHARE %q: %w", cfg.CreatorShare, err)
	}
	policy := PricingPolicy{
		CreatorShare:   share,
		ReservationTTL: cfg.ReservationTTL,
	}
	if err := validatePricingPolicy(policy); err != nil {
		return PricingPolicy{}, err
	}
	return policy, nil
}

type PricingPolicyHolder struct {
	current atomic.Value // holds PricingPolicy
}

// NewStaticPricingPolicy returns a holder that never reloads.
func NewStaticPricingPolicy(policy PricingPolicy) *PricingPolicyHolder {
	holder := &PricingPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

// NewPricingPolicyHolder reads pricing.yml when present and watches it for changes.
// Missing files fall back to the env defaults.
func NewPricingPolicyHolder(cfg Config, log *zap.Logger) (*PricingPolicyHolder, error) {
	defaults, err := DefaultPricingPolicy(cfg)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("pricing.policy")

	v := viper.New()
	v.SetConfigName("pricing")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/sponsorship")
	v.AddConfigPath(".")
	v.SetDefault("pricing.creator_share", defaults.CreatorShare.String())
	v.SetDefault("pricing.reservation_ttl", defaults.ReservationTTL.String())

	holder := NewStaticPricingPolicy(defaults)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		return holder, nil
	}

	policy, err := pricingPolicyFromViper(v)
	if err != nil {
		return nil, err
	}
	holder.current.Store(policy)

	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := pricingPolicyFromViper(v)
		if err != nil {
			log.Warn("invalid pricing policy ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("pricing policy reloaded",
			zap.String("file", e.Name),
			zap.String("creator_share", updated.CreatorShare.String()),
			zap.Duration("reservation_ttl", updated.ReservationTTL),
		)
	})
	v.WatchConfig()

	return holder, nil
}

func (h *PricingPolicyHolder) Get() PricingPolicy {
	return h.current.Load().(PricingPolicy)
}

func pricingPolicyFromViper(v *viper.Viper) (PricingPolicy, error) {
	share, err := decimal.NewFromString(strings.TrimSpace(v.GetString("pricing.creator_share")))
	if err != nil {
		return PricingPolicy{}, fmt.Errorf("pricing.creator_share: %w", err)
	}
	policy := PricingPolicy{
		CreatorShare:   share,
		ReservationTTL: v.GetDuration("pricing.reservation_ttl"),
	}
	if err := validatePricingPolicy(policy); err != nil {
		return PricingPolicy{}, err
	}
	return policy, nil
}

func validatePricingPolicy(policy PricingPolicy) error {
	if policy.CreatorShare.IsNegative() || policy.CreatorShare.GreaterThan(decimal.NewFromInt(1)) {
		return errors.New("pricing.creator_share must be within [0, 1]")
	}
	if policy.ReservationTTL <= 0 {
		return errors.New("pricing.reservation_ttl must be positive")
	}
	return nil
}
