package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const sourceTimeout = 5 * time.Second

// CoinbaseSource reads the ETH spot price from the Coinbase public API.
type CoinbaseSource struct {
	URL    string
	Client *http.Client
}

func (s *CoinbaseSource) Name() string { return "coinbase" }

func (s *CoinbaseSource) FetchRate(ctx context.Context) (float64, error) {
	var payload struct {
		Data struct {
			Amount string `json:"amount"`
		} `json:"data"`
	}
	if err := fetchJSON(ctx, s.Client, s.URL, &payload); err != nil {
		return 0, err
	}
	rate, err := strconv.ParseFloat(payload.Data.Amount, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", payload.Data.Amount, err)
	}
	return rate, nil
}

// CoinGeckoSource reads the ETH/USD price from the CoinGecko simple-price API.
type CoinGeckoSource struct {
	URL    string
	Client *http.Client
}

func (s *CoinGeckoSource) Name() string { return "coingecko" }

func (s *CoinGeckoSource) FetchRate(ctx context.Context) (float64, error) {
	var payload struct {
		Ethereum struct {
			USD float64 `json:"usd"`
		} `json:"ethereum"`
	}
	if err := fetchJSON(ctx, s.Client, s.URL, &payload); err != nil {
		return 0, err
	}
	return payload.Ethereum.USD, nil
}

func fetchJSON(ctx context.Context, client *http.Client, url string, out interface{}) error {
	if client == nil {
		client = http.DefaultClient
	}
	ctx, cancel := context.WithTimeout(ctx, sourceTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
