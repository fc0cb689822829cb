package riotapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/gambot/internal/domain"
)

const (
	// Rate limit al 60% del límite real de una dev key: 20/1s → 12/s.
	// Las app keys de producción toleran mucho más; el limiter se queda corto
	// a propósito para no compartir presupuesto con otros consumidores.
	requestsPerSec = 12

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

var errNotFound = errors.New("riotapi: not found")

// Client es el HTTP client de la API de Riot con rate limiting y retries.
// Implementa ports.GameData: partida activa por spectator-v5 y registro final
// por match-v5.
type Client struct {
	http         *http.Client
	platformBase string // host de plataforma (euw1, na1...): spectator
	regionBase   string // host regional (europe, americas...): match
	apiKey       string
	limiter      *rate.Limiter
}

// NewClient crea un Client para la plataforma y región dadas, por ejemplo
// ("euw1", "europe").
func NewClient(platform, region, apiKey string) *Client {
	return &Client{
		http:         &http.Client{Timeout: 10 * time.Second},
		platformBase: fmt.Sprintf("https://%s.api.riotgames.com", platform),
		regionBase:   fmt.Sprintf("https://%s.api.riotgames.com", region),
		apiKey:       apiKey,
		limiter:      rate.NewLimiter(requestsPerSec, 5),
	}
}

// ActiveMatch devuelve la partida activa del jugador. Un 404 del spectator
// significa "no está en partida" y se traduce al centinela del dominio.
func (c *Client) ActiveMatch(ctx context.Context, player domain.PlayerRef) (domain.ActiveMatch, error) {
	url := fmt.Sprintf("%s/lol/spectator/v5/active-games/by-summoner/%s", c.platformBase, player.GameID)

	var dto activeGameDTO
	if err := c.get(ctx, url, &dto); err != nil {
		if errors.Is(err, errNotFound) {
			return domain.ActiveMatch{}, domain.ErrNoActiveMatch
		}
		return domain.ActiveMatch{}, fmt.Errorf("riotapi.ActiveMatch: %w", err)
	}
	return toActiveMatch(dto), nil
}

// FinishedMatch devuelve el registro final de una partida. Riot publica el
// match con retraso tras el fin: un 404 aquí es ErrNotReady, reintentable.
func (c *Client) FinishedMatch(ctx context.Context, matchID string) (*domain.MatchRecord, error) {
	url := fmt.Sprintf("%s/lol/match/v5/matches/%s", c.regionBase, matchID)

	var dto matchDTO
	if err := c.get(ctx, url, &dto); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, domain.ErrNotReady
		}
		return nil, fmt.Errorf("riotapi.FinishedMatch: %w", err)
	}
	return toMatchRecord(dto), nil
}

// get hace un GET autenticado con rate limiting y retries.
func (c *Client) get(ctx context.Context, url string, out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Riot-Token", c.apiKey)

		resp, err := c.http.Do(req)
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			return errNotFound
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			slog.Warn("rate limited by riot API", "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("server error %d after %d retries", resp.StatusCode, maxRetries)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
		}

		defer resp.Body.Close()
		if err := decodeJSON(resp.Body, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

// sleep espera con backoff exponencial, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
