package config

import (
	"fmt"
	"strings"

	"exec-engine-go/inventory"
)

// ErrInvalid 用于参数验证错误。
type ErrInvalid string

func (e ErrInvalid) Error() string { return string(e) }

func invalid(format string, args ...interface{}) error {
	return ErrInvalid(fmt.Sprintf(format, args...))
}

// Validate ensures required fields are present and consistent.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return invalid("env is required")
	}
	if cfg.Engine.QueueSize < 0 {
		return invalid("engine.queue_size must be >= 0")
	}

	venues := make(map[string]VenueConfig, len(cfg.Venues))
	for _, v := range cfg.Venues {
		if v.Name == "" {
			return invalid("venue name is required")
		}
		if _, dup := venues[v.Name]; dup {
			return invalid("venue %s configured twice", v.Name)
		}
		switch v.Kind {
		case VenueSandbox:
			if _, _, err := v.Fees(); err != nil {
				return invalid("%v", err)
			}
		case VenueBinanceFutures:
			if v.APIKey == "" || v.APISecret == "" {
				return invalid("venue %s api_key/api_secret is required (or env overrides)", v.Name)
			}
			if v.RateLimit < 0 || v.Burst < 0 {
				return invalid("venue %s rate limits must be >= 0", v.Name)
			}
		default:
			return invalid("venue %s has unknown kind %q", v.Name, v.Kind)
		}
		venues[v.Name] = v
	}

	if len(cfg.Instruments) == 0 {
		return invalid("instruments config is required")
	}
	ids := make(map[string]bool, len(cfg.Instruments))
	for _, ic := range cfg.Instruments {
		inst, err := ic.Instrument()
		if err != nil {
			return invalid("%v", err)
		}
		if ids[ic.ID] {
			return invalid("instrument %s configured twice", ic.ID)
		}
		ids[ic.ID] = true
		if ic.BaseCurrency == "" || ic.QuoteCurrency == "" {
			return invalid("instrument %s base/quote currency is required", ic.ID)
		}
		if inst.TickSize.IsNegative() || inst.StepSize.IsNegative() {
			return invalid("instrument %s tick/step size must be >= 0", ic.ID)
		}
		if _, ok := venues[string(inst.ID.Venue)]; !ok {
			return invalid("instrument %s references unknown venue %s", ic.ID, inst.ID.Venue)
		}
	}

	accounts := make(map[string]bool, len(cfg.Accounts))
	for _, ac := range cfg.Accounts {
		if ac.ID == "" || ac.Venue == "" {
			return invalid("account id and venue are required")
		}
		if accounts[ac.ID] {
			return invalid("account %s configured twice", ac.ID)
		}
		accounts[ac.ID] = true
		switch inventory.AccountType(strings.ToUpper(ac.Type)) {
		case "", inventory.AccountCash, inventory.AccountMargin:
		default:
			return invalid("account %s has unknown type %q", ac.ID, ac.Type)
		}
		if _, ok := venues[ac.Venue]; !ok {
			return invalid("account %s references unknown venue %s", ac.ID, ac.Venue)
		}
		if _, err := ac.Account(); err != nil {
			return invalid("%v", err)
		}
	}
	for _, v := range venues {
		if v.AccountID != "" && !accounts[v.AccountID] {
			return invalid("venue %s references unknown account %s", v.Name, v.AccountID)
		}
	}
	return nil
}
