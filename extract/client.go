// Package extract reads match results, free text and money values out of
// screenshots and text by asking a hosted model for strict JSON.
package extract

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/ts4z/trz/dep"
	"github.com/ts4z/trz/model"
	"github.com/ts4z/trz/textutil"
)

// NewLimiter allows calls requests per window, refilling evenly.
func NewLimiter(calls int, window time.Duration) *rate.Limiter {
	if calls <= 0 || window <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Every(window/time.Duration(calls)), calls)
}

type Config struct {
	Generator Generator
	Limiter   *rate.Limiter // nil means unlimited
	Policy    Policy
	Clock     clockwork.Clock
	TextDelay time.Duration // between images in ExtractText
	Money     textutil.MoneyPolicy
}

type Client struct {
	gen       Generator
	limiter   *rate.Limiter
	policy    Policy
	textQueue *Queue
	money     textutil.MoneyPolicy
}

func NewClient(cfg *Config) *Client {
	policy := cfg.Policy
	if policy == (Policy{}) {
		policy = DefaultPolicy()
	}
	money := cfg.Money
	if money.Max.IsZero() {
		money = textutil.DefaultMoneyPolicy
	}
	return &Client{
		gen:       dep.Required(cfg.Generator),
		limiter:   cfg.Limiter,
		policy:    policy,
		textQueue: NewQueue(cfg.Clock, cfg.TextDelay),
		money:     money,
	}
}

// call runs one request under the limiter and retry policy.
func (c *Client) call(ctx context.Context, req *Request) (string, error) {
	var out string
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		s, err := c.gen.Generate(ctx, req)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("inference call failed")
			return err
		}
		out = s
		return nil
	})
	return out, err
}

// ExtractMatches reads the teams on one screenshot.
func (c *Client) ExtractMatches(ctx context.Context, img Image) ([]model.MatchResult, error) {
	if !img.Valid() {
		return nil, ErrInvalidImage
	}
	raw, err := c.call(ctx, &Request{Prompt: matchesPrompt, Images: []Image{img}, Schema: matchesSchema})
	if err != nil {
		return nil, err
	}
	results, err := decodeMatches(raw)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("response", raw).Msg("can't parse team list")
		return nil, err
	}
	return results, nil
}

// ExtractText reads all visible text from the images, in order.  An
// image whose response can't be parsed adds nothing; a failed call
// aborts the batch.
func (c *Client) ExtractText(ctx context.Context, images []Image) ([]string, error) {
	for _, img := range images {
		if !img.Valid() {
			return nil, ErrInvalidImage
		}
	}
	texts := []string{}
	err := c.textQueue.Run(ctx, len(images), func(ctx context.Context, i int) error {
		raw, err := c.call(ctx, &Request{Prompt: textPrompt, Images: []Image{images[i]}, Schema: textSchema})
		if err != nil {
			return err
		}
		found, err := decodeStrings(raw)
		if errors.Is(err, ErrInvalidResponse) {
			zerolog.Ctx(ctx).Warn().Err(err).Int("image", i).Str("response", raw).Msg("skipping unreadable OCR response")
			return nil
		}
		texts = append(texts, found...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return texts, nil
}

// SumValues asks the model for the money amounts in text, keeps the
// plausible ones and totals them.
func (c *Client) SumValues(ctx context.Context, text string) (*model.MoneyResult, error) {
	raw, err := c.call(ctx, &Request{Prompt: moneyPrompt + text, Schema: moneySchema})
	if err != nil {
		return nil, err
	}
	found, err := decodeNumbers(raw)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("response", raw).Msg("can't parse money values")
		return nil, err
	}
	values := []decimal.Decimal{}
	for _, v := range found {
		if c.money.Plausible(v) {
			values = append(values, v)
		}
	}
	return &model.MoneyResult{Values: values, Total: textutil.SumMoney(values)}, nil
}

// FormatTexts joins OCR output for display: "a", "a e b", "a, b e c".
func FormatTexts(texts []string) string {
	return textutil.JoinNames(texts)
}
