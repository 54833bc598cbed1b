package model

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// SettingsID is the key of the one settings row everybody shares.
const SettingsID = "global"

// AppSettings is the shared configuration as stored.  Any field may be
// null, in which case the caller's default applies.
type AppSettings struct {
	EntryFee       *decimal.Decimal `json:"entryFee"`
	AdjustmentMode *AdjustmentMode  `json:"adjustmentMode"`
	FixedProfit    *decimal.Decimal `json:"fixedProfit"`
	PrizeRules     *PrizeRules      `json:"prizeRules"`

	// Version increments on every save.
	Version int64 `json:"version"`
}

func (s *AppSettings) Clone() *AppSettings {
	c := &AppSettings{Version: s.Version, PrizeRules: s.PrizeRules.Clone()}
	if s.EntryFee != nil {
		v := *s.EntryFee
		c.EntryFee = &v
	}
	if s.AdjustmentMode != nil {
		v := *s.AdjustmentMode
		c.AdjustmentMode = &v
	}
	if s.FixedProfit != nil {
		v := *s.FixedProfit
		c.FixedProfit = &v
	}
	return c
}

// ResolvedSettings is AppSettings with every hole filled in.
type ResolvedSettings struct {
	EntryFee       decimal.Decimal `json:"entryFee"`
	AdjustmentMode AdjustmentMode  `json:"adjustmentMode"`
	FixedProfit    decimal.Decimal `json:"fixedProfit"`
	PrizeRules     *PrizeRules     `json:"prizeRules"`
	Version        int64           `json:"version"`
}

// Resolve fills null fields from defaults.
func (s *AppSettings) Resolve(defaults *ResolvedSettings) *ResolvedSettings {
	r := &ResolvedSettings{
		EntryFee:       defaults.EntryFee,
		AdjustmentMode: defaults.AdjustmentMode,
		FixedProfit:    defaults.FixedProfit,
		PrizeRules:     defaults.PrizeRules.Clone(),
		Version:        s.Version,
	}
	if s.EntryFee != nil {
		r.EntryFee = *s.EntryFee
	}
	if s.AdjustmentMode != nil && s.AdjustmentMode.Valid() {
		r.AdjustmentMode = *s.AdjustmentMode
	}
	if s.FixedProfit != nil {
		r.FixedProfit = *s.FixedProfit
	}
	if s.PrizeRules != nil {
		r.PrizeRules = s.PrizeRules.Clone()
	}
	return r
}

// SettingsPatch is a partial update.  Only fields that are Set are written;
// a Set field with a nil value clears the stored value.
type SettingsPatch struct {
	EntryFee       Optional[decimal.Decimal] `json:"entryFee"`
	AdjustmentMode Optional[AdjustmentMode]  `json:"adjustmentMode"`
	FixedProfit    Optional[decimal.Decimal] `json:"fixedProfit"`
	PrizeRules     Optional[PrizeRules]      `json:"prizeRules"`
}

func (p *SettingsPatch) Empty() bool {
	return !p.EntryFee.Set && !p.AdjustmentMode.Set && !p.FixedProfit.Set && !p.PrizeRules.Set
}

// Apply copies the present fields of the patch over s.
func (p *SettingsPatch) Apply(s *AppSettings) {
	if p.EntryFee.Set {
		s.EntryFee = p.EntryFee.Clone()
	}
	if p.AdjustmentMode.Set {
		s.AdjustmentMode = p.AdjustmentMode.Clone()
	}
	if p.FixedProfit.Set {
		s.FixedProfit = p.FixedProfit.Clone()
	}
	if p.PrizeRules.Set {
		if p.PrizeRules.Value == nil {
			s.PrizeRules = nil
		} else {
			s.PrizeRules = p.PrizeRules.Value.Clone()
		}
	}
}

// Optional tracks whether a JSON field was present at all, separately from
// whether it was null.
type Optional[T any] struct {
	Set   bool
	Value *T
}

func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: &v}
}

func Null[T any]() Optional[T] {
	return Optional[T]{Set: true}
}

func (o Optional[T]) Clone() *T {
	if o.Value == nil {
		return nil
	}
	v := *o.Value
	return &v
}

func (o *Optional[T]) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		o.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if o.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}
