package resource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/pokemcp/server/game/battle"
	"github.com/pokemcp/server/metrics"
)

// DefaultBaseURL is the public PokeAPI v2 root.
const DefaultBaseURL = "https://pokeapi.co/api/v2"

var (
	// ErrNotFound is returned when PokeAPI answers 404.
	ErrNotFound = errors.New("pokeapi: not found")
	// ErrEmptyName is returned for blank lookups.
	ErrEmptyName = errors.New("pokeapi: empty name")
)

// APIError is a non-2xx, non-404 upstream response.
type APIError struct {
	StatusCode int
	URL        string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("pokeapi: %s returned %d", e.URL, e.StatusCode)
}

// ---- PokeAPI wire shapes ----

type namedRef struct {
	Name string `json:"name" validate:"required"`
	URL  string `json:"url"`
}

type pokemonStat struct {
	BaseStat int      `json:"base_stat" validate:"gte=0"`
	Stat     namedRef `json:"stat"`
}

type pokemonType struct {
	Slot int      `json:"slot"`
	Type namedRef `json:"type"`
}

type pokemonAbility struct {
	Ability namedRef `json:"ability"`
}

type pokemonMove struct {
	Move namedRef `json:"move"`
}

type pokemonDTO struct {
	ID        int              `json:"id" validate:"gt=0"`
	Name      string           `json:"name" validate:"required"`
	Stats     []pokemonStat    `json:"stats" validate:"required,min=1,dive"`
	Types     []pokemonType    `json:"types" validate:"required,min=1,dive"`
	Abilities []pokemonAbility `json:"abilities" validate:"dive"`
	Moves     []pokemonMove    `json:"moves" validate:"dive"`
	Species   namedRef         `json:"species"`
}

type speciesDTO struct {
	Name           string `json:"name"`
	EvolutionChain struct {
		URL string `json:"url" validate:"required,url"`
	} `json:"evolution_chain"`
}

type chainLink struct {
	Species   namedRef    `json:"species"`
	EvolvesTo []chainLink `json:"evolves_to"`
}

type evolutionDTO struct {
	Chain chainLink `json:"chain"`
}

type effectEntry struct {
	Effect      string   `json:"effect"`
	ShortEffect string   `json:"short_effect"`
	Language    namedRef `json:"language"`
}

type moveMetaDTO struct {
	Ailment       namedRef `json:"ailment"`
	AilmentChance int      `json:"ailment_chance"`
	CritRate      int      `json:"crit_rate"`
	Drain         int      `json:"drain"`
	FlinchChance  int      `json:"flinch_chance"`
	Healing       int      `json:"healing"`
	StatChance    int      `json:"stat_chance"`
	MinHits       *int     `json:"min_hits"`
	MaxHits       *int     `json:"max_hits"`
}

type moveStatChange struct {
	Change int      `json:"change"`
	Stat   namedRef `json:"stat"`
}

type moveDTO struct {
	ID            int              `json:"id" validate:"gte=0"`
	Name          string           `json:"name" validate:"required"`
	Type          namedRef         `json:"type"`
	Power         *int             `json:"power" validate:"omitempty,gte=0"`
	PP            *int             `json:"pp"`
	Accuracy      *int             `json:"accuracy" validate:"omitempty,gte=0,lte=100"`
	Priority      int              `json:"priority"`
	DamageClass   namedRef         `json:"damage_class"`
	EffectChance  *int             `json:"effect_chance"`
	EffectEntries []effectEntry    `json:"effect_entries"`
	Meta          *moveMetaDTO     `json:"meta"`
	StatChanges   []moveStatChange `json:"stat_changes" validate:"dive"`
}

type typeListDTO struct {
	Results []namedRef `json:"results" validate:"required,dive"`
}

type typeDTO struct {
	Name            string `json:"name" validate:"required"`
	DamageRelations struct {
		DoubleDamageTo []namedRef `json:"double_damage_to"`
		HalfDamageTo   []namedRef `json:"half_damage_to"`
		NoDamageTo     []namedRef `json:"no_damage_to"`
	} `json:"damage_relations"`
}

// ---- Client ----

// ClientConfig configures the upstream client.
type ClientConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// PokeAPIClient fetches and normalizes PokeAPI resources into battle records.
type PokeAPIClient struct {
	baseURL  string
	http     *http.Client
	validate *validator.Validate
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewPokeAPIClient creates a client. m and logger may be nil.
func NewPokeAPIClient(cfg ClientConfig, m *metrics.Metrics, logger *zap.Logger) *PokeAPIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PokeAPIClient{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		http:     &http.Client{Timeout: cfg.Timeout},
		validate: validator.New(),
		metrics:  m,
		logger:   logger,
	}
}

func normalizeName(name string) (string, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return "", ErrEmptyName
	}
	return n, nil
}

// getJSON fetches rawURL into out and validates it. endpoint labels metrics.
func (c *PokeAPIClient) getJSON(ctx context.Context, endpoint, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("pokeapi: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.PokeAPIRequest(endpoint, "error")
		return fmt.Errorf("pokeapi: %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	c.metrics.PokeAPIRequest(endpoint, strconv.Itoa(resp.StatusCode))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, rawURL)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &APIError{StatusCode: resp.StatusCode, URL: rawURL}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("pokeapi: decode %s: %w", endpoint, err)
	}
	if err := c.validate.Struct(out); err != nil {
		return fmt.Errorf("pokeapi: invalid %s payload: %w", endpoint, err)
	}
	return nil
}

func (c *PokeAPIClient) endpoint(kind, name string) string {
	return c.baseURL + "/" + kind + "/" + url.PathEscape(name)
}

// Pokemon fetches a species record including its evolution chain. A failed
// evolution lookup degrades to a chain holding only the pokemon itself.
func (c *PokeAPIClient) Pokemon(ctx context.Context, name string) (*battle.PokemonRecord, error) {
	n, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	var dto pokemonDTO
	if err := c.getJSON(ctx, "pokemon", c.endpoint("pokemon", n), &dto); err != nil {
		return nil, err
	}
	rec := &battle.PokemonRecord{ID: dto.ID, Name: dto.Name}
	for _, s := range dto.Stats {
		switch s.Stat.Name {
		case "hp":
			rec.BaseStats.HP = s.BaseStat
		case "attack":
			rec.BaseStats.Attack = s.BaseStat
		case "defense":
			rec.BaseStats.Defense = s.BaseStat
		case "special-attack":
			rec.BaseStats.SpAttack = s.BaseStat
		case "special-defense":
			rec.BaseStats.SpDefense = s.BaseStat
		case "speed":
			rec.BaseStats.Speed = s.BaseStat
		}
	}
	for _, t := range dto.Types {
		rec.Types = append(rec.Types, t.Type.Name)
	}
	for _, a := range dto.Abilities {
		rec.Abilities = append(rec.Abilities, a.Ability.Name)
	}
	for _, m := range dto.Moves {
		rec.Moves = append(rec.Moves, m.Move.Name)
	}

	chain, err := c.evolutionChain(ctx, dto.Species.URL)
	if err != nil {
		c.logger.Warn("evolution chain lookup failed",
			zap.String("pokemon", dto.Name), zap.Error(err))
		chain = []string{dto.Name}
	}
	rec.EvolutionChain = chain
	return rec, nil
}

// evolutionChain walks species → chain, following the first branch only.
func (c *PokeAPIClient) evolutionChain(ctx context.Context, speciesURL string) ([]string, error) {
	if speciesURL == "" {
		return nil, errors.New("pokeapi: pokemon has no species url")
	}
	var sp speciesDTO
	if err := c.getJSON(ctx, "pokemon-species", speciesURL, &sp); err != nil {
		return nil, err
	}
	var evo evolutionDTO
	if err := c.getJSON(ctx, "evolution-chain", sp.EvolutionChain.URL, &evo); err != nil {
		return nil, err
	}
	var names []string
	link := &evo.Chain
	for {
		names = append(names, link.Species.Name)
		if len(link.EvolvesTo) == 0 {
			break
		}
		link = &link.EvolvesTo[0]
	}
	return names, nil
}

// Move fetches a move record. Damaging moves without power keep a nil
// Power; the engine applies the default.
func (c *PokeAPIClient) Move(ctx context.Context, name string) (*battle.MoveRecord, error) {
	n, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	var dto moveDTO
	if err := c.getJSON(ctx, "move", c.endpoint("move", n), &dto); err != nil {
		return nil, err
	}
	mv := &battle.MoveRecord{
		ID:           dto.ID,
		Name:         dto.Name,
		Type:         dto.Type.Name,
		Power:        dto.Power,
		Accuracy:     dto.Accuracy,
		Priority:     dto.Priority,
		Category:     battle.Category(dto.DamageClass.Name),
		EffectChance: dto.EffectChance,
	}
	if mv.Type == "" {
		mv.Type = "normal"
	}
	if dto.PP != nil {
		mv.PP = *dto.PP
	}
	for _, e := range dto.EffectEntries {
		if e.Language.Name == "en" || mv.ShortEffect == "" {
			mv.ShortEffect = e.ShortEffect
		}
	}
	if m := dto.Meta; m != nil {
		mv.Meta = battle.MoveMeta{
			AilmentChance: m.AilmentChance,
			CritRate:      m.CritRate,
			Drain:         m.Drain,
			FlinchChance:  m.FlinchChance,
			Healing:       m.Healing,
			StatChance:    m.StatChance,
		}
		if a := m.Ailment.Name; a != "none" && a != "unknown" {
			mv.Meta.Ailment = a
		}
		if m.MinHits != nil {
			mv.Meta.MinHits = *m.MinHits
		}
		if m.MaxHits != nil {
			mv.Meta.MaxHits = *m.MaxHits
		}
	}
	for _, sc := range dto.StatChanges {
		mv.StatChanges = append(mv.StatChanges, battle.StatChange{Stat: sc.Stat.Name, Change: sc.Change})
	}
	return mv, nil
}

// TypeChart builds the full chart from /type and every /type/{name}.
func (c *PokeAPIClient) TypeChart(ctx context.Context) (*battle.TypeChart, error) {
	var list typeListDTO
	if err := c.getJSON(ctx, "type", c.baseURL+"/type?limit=100", &list); err != nil {
		return nil, err
	}
	relations := make(map[string]map[string]float64, len(list.Results))
	for _, ref := range list.Results {
		target := ref.URL
		if target == "" {
			target = c.endpoint("type", ref.Name)
		}
		var t typeDTO
		if err := c.getJSON(ctx, "type", target, &t); err != nil {
			return nil, fmt.Errorf("pokeapi: type %s: %w", ref.Name, err)
		}
		row := make(map[string]float64)
		for _, d := range t.DamageRelations.DoubleDamageTo {
			row[d.Name] = 2
		}
		for _, d := range t.DamageRelations.HalfDamageTo {
			row[d.Name] = 0.5
		}
		for _, d := range t.DamageRelations.NoDamageTo {
			row[d.Name] = 0
		}
		relations[t.Name] = row
	}
	return battle.NewTypeChart(relations)
}
