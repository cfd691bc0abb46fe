package contractstest

import (
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

type priceKey struct {
	asset  common.Address
	expiry uint64
}

// Oracle simulates the Gamma Oracle on a FakeChain
type Oracle struct {
	Address common.Address

	mu      sync.Mutex
	prices  map[priceKey]*big.Int
	locking map[common.Address]bool
	pricers map[common.Address]common.Address
}

// NewOracle installs an Oracle at addr
func (c *FakeChain) NewOracle(addr common.Address) *Oracle {
	o := &Oracle{
		Address: addr,
		prices:  make(map[priceKey]*big.Int),
		locking: make(map[common.Address]bool),
		pricers: make(map[common.Address]common.Address),
	}

	c.Handle(addr, GetExpiryPrice, func(input []byte) ([]any, error) {
		var (
			asset  common.Address
			expiry *big.Int
		)
		if err := GetExpiryPrice.DecodeArgs(input, &asset, &expiry); err != nil {
			return nil, err
		}
		price := o.Price(asset, expiry.Uint64())
		return []any{price, price.Sign() > 0}, nil
	})
	c.Handle(addr, IsLockingPeriodOver, func(input []byte) ([]any, error) {
		var (
			asset  common.Address
			expiry *big.Int
		)
		if err := IsLockingPeriodOver.DecodeArgs(input, &asset, &expiry); err != nil {
			return nil, err
		}
		o.mu.Lock()
		defer o.mu.Unlock()
		return []any{o.locking[asset]}, nil
	})
	c.Return(addr, IsDisputePeriodOver, true)
	c.Handle(addr, GetPricer, func(input []byte) ([]any, error) {
		var asset common.Address
		if err := GetPricer.DecodeArgs(input, &asset); err != nil {
			return nil, err
		}
		o.mu.Lock()
		defer o.mu.Unlock()
		return []any{o.pricers[asset]}, nil
	})
	c.OnSend(addr, SetAssetPricer, func(input []byte) error {
		var asset, pricer common.Address
		if err := SetAssetPricer.DecodeArgs(input, &asset, &pricer); err != nil {
			return err
		}
		o.SetPricer(asset, pricer)
		return nil
	})
	c.OnSend(addr, MigrateOracle, func(input []byte) error {
		var (
			asset    common.Address
			expiries []*big.Int
			prices   []*big.Int
		)
		if err := MigrateOracle.DecodeArgs(input, &asset, &expiries, &prices); err != nil {
			return err
		}
		if len(expiries) != len(prices) {
			return errors.New("Oracle: invalid migration data")
		}
		for i := range expiries {
			o.SetPrice(asset, expiries[i].Uint64(), prices[i])
		}
		return nil
	})
	return o
}

// SetPrice stores an expiry price
func (o *Oracle) SetPrice(asset common.Address, expiry uint64, price *big.Int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prices[priceKey{asset, expiry}] = price
}

// Price returns the stored expiry price or zero
func (o *Oracle) Price(asset common.Address, expiry uint64) *big.Int {
	o.mu.Lock()
	defer o.mu.Unlock()
	if p, ok := o.prices[priceKey{asset, expiry}]; ok {
		return new(big.Int).Set(p)
	}
	return new(big.Int)
}

// SetLockingPeriodOver controls isLockingPeriodOver for asset
func (o *Oracle) SetLockingPeriodOver(asset common.Address, over bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.locking[asset] = over
}

// SetPricer assigns a pricer to asset
func (o *Oracle) SetPricer(asset, pricer common.Address) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pricers[asset] = pricer
}

type round struct {
	timestamp uint64
	answer    *big.Int
}

// Aggregator simulates a Chainlink aggregator
type Aggregator struct {
	Address common.Address

	mu     sync.Mutex
	rounds map[uint64]round
	latest uint64
}

// NewAggregator installs an aggregator at addr
func (c *FakeChain) NewAggregator(addr common.Address) *Aggregator {
	a := &Aggregator{Address: addr, rounds: make(map[uint64]round)}

	c.Handle(addr, LatestRound, func([]byte) ([]any, error) {
		a.mu.Lock()
		defer a.mu.Unlock()
		return []any{new(big.Int).SetUint64(a.latest)}, nil
	})
	c.Handle(addr, GetTimestamp, func(input []byte) ([]any, error) {
		var id *big.Int
		if err := GetTimestamp.DecodeArgs(input, &id); err != nil {
			return nil, err
		}
		a.mu.Lock()
		defer a.mu.Unlock()
		return []any{new(big.Int).SetUint64(a.rounds[id.Uint64()].timestamp)}, nil
	})
	return a
}

// AddRound records a round; the highest id is the latest round
func (a *Aggregator) AddRound(id, timestamp uint64, answer int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rounds[id] = round{timestamp: timestamp, answer: big.NewInt(answer)}
	if id > a.latest {
		a.latest = id
	}
}

func (a *Aggregator) round(id uint64) (round, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.rounds[id]
	return r, ok && r.timestamp > 0
}

// NewChainlinkPricer installs a Chainlink pricer at addr that writes asset
// prices from agg into oracle. Submissions with a round before expiry revert.
func (c *FakeChain) NewChainlinkPricer(addr, asset, bot common.Address, agg *Aggregator, oracle *Oracle) {
	c.Return(addr, PricerAggregator, agg.Address)
	c.Return(addr, PricerBot, bot)
	c.Return(addr, PricerAsset, asset)
	c.OnSend(addr, SetExpiryPriceWithRound, func(input []byte) error {
		var expiry, roundID *big.Int
		if err := SetExpiryPriceWithRound.DecodeArgs(input, &expiry, &roundID); err != nil {
			return err
		}
		r, ok := agg.round(roundID.Uint64())
		if !ok || r.timestamp < expiry.Uint64() {
			return errors.New("ChainLinkPricer: invalid roundId")
		}
		oracle.SetPrice(asset, expiry.Uint64(), r.answer)
		return nil
	})
}

// NewDerivedPricer installs a derived pricer at addr that prices asset at
// the underlying expiry price times multiplier.
func (c *FakeChain) NewDerivedPricer(addr, asset, underlying common.Address, multiplier int64, oracle *Oracle) {
	c.Return(addr, PricerAsset, asset)
	c.Return(addr, PricerUnderlying, underlying)
	c.OnSend(addr, SetExpiryPrice, func(input []byte) error {
		var expiry *big.Int
		if err := SetExpiryPrice.DecodeArgs(input, &expiry); err != nil {
			return err
		}
		base := oracle.Price(underlying, expiry.Uint64())
		if base.Sign() == 0 {
			return errors.New("DerivedPricer: underlying price not set")
		}
		oracle.SetPrice(asset, expiry.Uint64(), base.Mul(base, big.NewInt(multiplier)))
		return nil
	})
}
