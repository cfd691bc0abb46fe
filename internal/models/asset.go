package models

import (
	"strings"
	"time"
)

// Asset kinds, matching the bot type that prices them
const (
	AssetKindBase    = "base"
	AssetKindDerived = "derived"
)

// Asset sources
const (
	AssetSourceConfig   = "config"
	AssetSourceRegistry = "registry"
)

// Asset is an asset a pricer bot pushes expiry prices for
type Asset struct {
	ID         string    `json:"id" db:"id"`
	Bot        string    `json:"bot" db:"bot"`
	Kind       string    `json:"kind" db:"kind"`
	Address    string    `json:"address" db:"address"`
	Pricer     string    `json:"pricer" db:"pricer"`
	Aggregator string    `json:"aggregator,omitempty" db:"aggregator"`
	Underlying string    `json:"underlying,omitempty" db:"underlying"`
	Collateral string    `json:"collateral,omitempty" db:"collateral"`
	Source     string    `json:"source" db:"source"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// Key identifies the asset within its bot
func (a *Asset) Key() string {
	return strings.ToLower(a.Bot) + "/" + strings.ToLower(a.Address)
}

// AssetFilter filters asset listings
type AssetFilter struct {
	Bot  string `json:"bot,omitempty"`
	Kind string `json:"kind,omitempty"`
}
