package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// FakePokeAPI serves a small, fixed subset of the PokeAPI v2 surface:
// /pokemon/{name}, /pokemon-species/{name}, /evolution-chain/{id},
// /move/{name}, /type and /type/{name}.
type FakePokeAPI struct {
	*httptest.Server

	mu   sync.Mutex
	hits map[string]int
	down atomic.Bool
}

type fakeMon struct {
	id        int
	types     []string
	stats     [6]int // hp, atk, def, spa, spd, spe
	abilities []string
	moves     []string
	chainID   int
}

var fakeMons = map[string]fakeMon{
	"pikachu": {25, []string{"electric"}, [6]int{35, 55, 40, 50, 50, 90},
		[]string{"static", "lightning-rod"}, []string{"thunder-shock", "quick-attack", "tail-whip", "growl", "thunder-wave"}, 10},
	"squirtle": {7, []string{"water"}, [6]int{44, 48, 65, 50, 64, 43},
		[]string{"torrent"}, []string{"tackle", "water-gun", "tail-whip", "withdraw"}, 3},
	"charmander": {4, []string{"fire"}, [6]int{39, 52, 43, 60, 50, 65},
		[]string{"blaze"}, []string{"scratch", "ember", "growl", "smokescreen"}, 2},
	"geodude": {74, []string{"rock", "ground"}, [6]int{40, 80, 100, 30, 30, 20},
		[]string{"rock-head", "sturdy"}, []string{"tackle", "rock-throw", "defense-curl", "broken-move"}, 31},
	"lonely": {999, []string{"normal"}, [6]int{50, 50, 50, 50, 50, 50},
		[]string{"run-away"}, []string{"tackle"}, 404},
}

var fakeChains = map[int][]string{
	10: {"pichu", "pikachu", "raichu"},
	3:  {"squirtle", "wartortle", "blastoise"},
	2:  {"charmander", "charmeleon", "charizard"},
	31: {"geodude", "graveler", "golem"},
}

type fakeMove struct {
	id           int
	typ          string
	power        *int
	accuracy     *int
	pp           int
	priority     int
	class        string
	effectChance *int
	shortEffect  string
	ailment      string
	ailmentPct   int
	statChanges  map[string]int
}

func ip(v int) *int { return &v }

var fakeMoves = map[string]fakeMove{
	"thunder-shock": {84, "electric", ip(40), ip(100), 30, 0, "special", ip(10),
		"Has a $effect_chance% chance to paralyze the target.", "paralysis", 10, nil},
	"quick-attack": {98, "normal", ip(40), ip(100), 30, 1, "physical", nil,
		"Inflicts regular damage with no additional effect.", "none", 0, nil},
	"tail-whip": {39, "normal", nil, ip(100), 30, 0, "status", nil,
		"Lowers the target's Defense by one stage.", "none", 0, map[string]int{"defense": -1}},
	"growl": {45, "normal", nil, ip(100), 40, 0, "status", nil,
		"Lowers the target's Attack by one stage.", "none", 0, map[string]int{"attack": -1}},
	"thunder-wave": {86, "electric", nil, ip(90), 20, 0, "status", nil,
		"Paralyzes the target.", "paralysis", 0, nil},
	"tackle": {33, "normal", ip(40), ip(100), 35, 0, "physical", nil,
		"Inflicts regular damage with no additional effect.", "none", 0, nil},
	"water-gun": {55, "water", ip(40), ip(100), 25, 0, "special", nil,
		"Inflicts regular damage with no additional effect.", "none", 0, nil},
	"withdraw": {110, "water", nil, nil, 40, 0, "status", nil,
		"Raises the user's Defense by one stage.", "none", 0, map[string]int{"defense": 1}},
	"scratch": {10, "normal", ip(40), ip(100), 35, 0, "physical", nil,
		"Inflicts regular damage with no additional effect.", "none", 0, nil},
	"ember": {52, "fire", ip(40), ip(100), 25, 0, "special", ip(10),
		"Has a $effect_chance% chance to burn the target.", "burn", 10, nil},
	"smokescreen": {108, "normal", nil, ip(100), 20, 0, "status", nil,
		"Lowers the target's accuracy by one stage.", "none", 0, map[string]int{"accuracy": -1}},
	"rock-throw": {88, "rock", ip(50), ip(90), 15, 0, "physical", nil,
		"Inflicts regular damage with no additional effect.", "none", 0, nil},
	"defense-curl": {111, "normal", nil, nil, 40, 0, "status", nil,
		"Raises the user's Defense by one stage.", "none", 0, map[string]int{"defense": 1}},
}

// fakeTypes maps attacking type to {double, half, none} targets.
var fakeTypes = map[string][3][]string{
	"normal":   {nil, {"rock", "steel"}, {"ghost"}},
	"fire":     {{"grass", "ice", "bug", "steel"}, {"fire", "water", "rock", "dragon"}, nil},
	"water":    {{"fire", "ground", "rock"}, {"water", "grass", "dragon"}, nil},
	"electric": {{"water", "flying"}, {"electric", "grass", "dragon"}, {"ground"}},
	"grass":    {{"water", "ground", "rock"}, {"fire", "grass", "poison", "flying", "bug", "dragon", "steel"}, nil},
	"ground":   {{"fire", "electric", "poison", "rock", "steel"}, {"grass", "bug"}, {"flying"}},
	"rock":     {{"fire", "ice", "flying", "bug"}, {"fighting", "ground", "steel"}, nil},
}

var fakeTypeOrder = []string{"normal", "fire", "water", "electric", "grass", "ground", "rock"}

// NewFakePokeAPI starts the fake server; it is closed on test cleanup.
func NewFakePokeAPI(t testing.TB) *FakePokeAPI {
	t.Helper()
	f := &FakePokeAPI{hits: make(map[string]int)}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Server.Close)
	return f
}

// Hits returns how many times path (without trailing slash) was requested.
func (f *FakePokeAPI) Hits(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

// SetDown makes every endpoint answer 503 while down is true.
func (f *FakePokeAPI) SetDown(down bool) { f.down.Store(down) }

func (f *FakePokeAPI) serve(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	f.mu.Lock()
	f.hits[path]++
	f.mu.Unlock()

	if f.down.Load() {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}

	base := "http://" + r.Host
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	var body any
	switch {
	case len(parts) == 2 && parts[0] == "pokemon":
		body = pokemonBody(base, parts[1])
	case len(parts) == 2 && parts[0] == "pokemon-species":
		if m, ok := fakeMons[parts[1]]; ok {
			body = map[string]any{
				"name":            parts[1],
				"evolution_chain": map[string]any{"url": base + "/evolution-chain/" + strconv.Itoa(m.chainID) + "/"},
			}
		}
	case len(parts) == 2 && parts[0] == "evolution-chain":
		body = chainBody(parts[1])
	case len(parts) == 2 && parts[0] == "move":
		if parts[1] == "broken-move" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		body = moveBody(parts[1])
	case len(parts) == 1 && parts[0] == "type":
		results := make([]map[string]any, 0, len(fakeTypeOrder))
		for _, name := range fakeTypeOrder {
			results = append(results, map[string]any{"name": name, "url": base + "/type/" + name + "/"})
		}
		body = map[string]any{"count": len(results), "results": results}
	case len(parts) == 2 && parts[0] == "type":
		body = typeBody(parts[1])
	}
	if body == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func named(name string) map[string]any { return map[string]any{"name": name, "url": ""} }

func pokemonBody(base, name string) any {
	m, ok := fakeMons[name]
	if !ok {
		return nil
	}
	statNames := []string{"hp", "attack", "defense", "special-attack", "special-defense", "speed"}
	stats := make([]map[string]any, len(statNames))
	for i, s := range statNames {
		stats[i] = map[string]any{"base_stat": m.stats[i], "effort": 0, "stat": named(s)}
	}
	types := make([]map[string]any, len(m.types))
	for i, t := range m.types {
		types[i] = map[string]any{"slot": i + 1, "type": named(t)}
	}
	abilities := make([]map[string]any, len(m.abilities))
	for i, a := range m.abilities {
		abilities[i] = map[string]any{"ability": named(a), "is_hidden": false, "slot": i + 1}
	}
	moves := make([]map[string]any, len(m.moves))
	for i, mv := range m.moves {
		moves[i] = map[string]any{"move": named(mv)}
	}
	return map[string]any{
		"id":        m.id,
		"name":      name,
		"stats":     stats,
		"types":     types,
		"abilities": abilities,
		"moves":     moves,
		"species":   map[string]any{"name": name, "url": base + "/pokemon-species/" + name + "/"},
	}
}

func chainBody(id string) any {
	n, err := strconv.Atoi(id)
	if err != nil {
		return nil
	}
	names, ok := fakeChains[n]
	if !ok {
		return nil
	}
	var link map[string]any
	for i := len(names) - 1; i >= 0; i-- {
		next := []any{}
		if link != nil {
			next = append(next, link)
		}
		link = map[string]any{"species": named(names[i]), "evolves_to": next}
	}
	return map[string]any{"id": id, "chain": link}
}

func moveBody(name string) any {
	mv, ok := fakeMoves[name]
	if !ok {
		return nil
	}
	changes := []map[string]any{}
	for stat, delta := range mv.statChanges {
		changes = append(changes, map[string]any{"change": delta, "stat": named(stat)})
	}
	return map[string]any{
		"id":            mv.id,
		"name":          name,
		"type":          named(mv.typ),
		"power":         mv.power,
		"accuracy":      mv.accuracy,
		"pp":            mv.pp,
		"priority":      mv.priority,
		"damage_class":  named(mv.class),
		"effect_chance": mv.effectChance,
		"effect_entries": []map[string]any{
			{"effect": mv.shortEffect, "short_effect": mv.shortEffect, "language": named("en")},
		},
		"meta": map[string]any{
			"ailment":        named(mv.ailment),
			"ailment_chance": mv.ailmentPct,
			"crit_rate":      0,
			"drain":          0,
			"flinch_chance":  0,
			"healing":        0,
			"stat_chance":    0,
			"min_hits":       nil,
			"max_hits":       nil,
		},
		"stat_changes": changes,
	}
}

func typeBody(name string) any {
	rel, ok := fakeTypes[name]
	if !ok {
		return nil
	}
	refs := func(names []string) []map[string]any {
		out := make([]map[string]any, len(names))
		for i, n := range names {
			out[i] = named(n)
		}
		return out
	}
	return map[string]any{
		"name": name,
		"damage_relations": map[string]any{
			"double_damage_to": refs(rel[0]),
			"half_damage_to":   refs(rel[1]),
			"no_damage_to":     refs(rel[2]),
		},
	}
}
