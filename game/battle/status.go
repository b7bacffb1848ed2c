package battle

// Status is a non-volatile status condition.
type Status string

const (
	StatusNone      Status = ""
	StatusParalysis Status = "paralysis"
	StatusPoison    Status = "poison"
	StatusBurn      Status = "burn"
	StatusSleep     Status = "sleep"
	StatusFreeze    Status = "freeze"
)

func (s Status) String() string {
	if s == StatusNone {
		return "None"
	}
	return string(s)
}

// StatusRule describes how a status behaves before its holder acts.
type StatusRule struct {
	Status Status

	// SkipChance is the probability the holder loses its action.
	SkipChance float64
	// RecoverChance is the probability the status clears and the holder
	// acts normally. When the roll fails the action is lost.
	RecoverChance float64
	// TickDivisor > 0 deals max(1, hp/TickDivisor) each action.
	TickDivisor int
	// Permanent statuses never expire by duration.
	Permanent bool
	// HalvesPhysical halves the holder's physical attack.
	HalvesPhysical bool

	SkipText    string
	RecoverText string
	StayText    string
	TickText    string
	OngoingText string
}

// StatusCatalog is the immutable set of known status rules.
type StatusCatalog struct {
	rules map[Status]StatusRule
	order []Status
}

// NewStatusCatalog builds a catalog from rules.
func NewStatusCatalog(rules ...StatusRule) *StatusCatalog {
	c := &StatusCatalog{rules: make(map[Status]StatusRule, len(rules))}
	for _, r := range rules {
		if _, dup := c.rules[r.Status]; !dup {
			c.order = append(c.order, r.Status)
		}
		c.rules[r.Status] = r
	}
	return c
}

// DefaultStatusCatalog returns the five standard conditions.
func DefaultStatusCatalog() *StatusCatalog {
	return NewStatusCatalog(
		StatusRule{
			Status:      StatusParalysis,
			SkipChance:  0.25,
			SkipText:    "is fully paralyzed and cannot move!",
			OngoingText: "'s speed is reduced due to paralysis.",
		},
		StatusRule{
			Status:      StatusPoison,
			TickDivisor: 8,
			Permanent:   true,
			TickText:    "is hurt by poison!",
		},
		StatusRule{
			Status:         StatusBurn,
			TickDivisor:    16,
			Permanent:      true,
			HalvesPhysical: true,
			TickText:       "is hurt by its burn!",
			OngoingText:    "'s physical attack is halved due to burn.",
		},
		StatusRule{
			Status:        StatusSleep,
			RecoverChance: 0.34,
			RecoverText:   "woke up!",
			StayText:      "is fast asleep.",
		},
		StatusRule{
			Status:        StatusFreeze,
			RecoverChance: 0.2,
			RecoverText:   "thawed out!",
			StayText:      "is frozen solid!",
		},
	)
}

// Rule returns the rule for s.
func (c *StatusCatalog) Rule(s Status) (StatusRule, bool) {
	if c == nil {
		return StatusRule{}, false
	}
	r, ok := c.rules[s]
	return r, ok
}

// Has reports whether s is a known status.
func (c *StatusCatalog) Has(s Status) bool {
	_, ok := c.Rule(s)
	return ok
}

// Statuses lists the catalog in insertion order.
func (c *StatusCatalog) Statuses() []Status {
	return append([]Status(nil), c.order...)
}

// StatusEngine runs the pre-action status check for the acting combatant.
type StatusEngine struct {
	Catalog *StatusCatalog
	RNG     RNG
}

// PreAction processes the actor's status before it chooses a move.
// skip reports that the actor loses this action; fainted reports that a
// status tick reduced it to 0 HP.
func (e *StatusEngine) PreAction(c *Combatant, log *Log) (skip, fainted bool) {
	if !c.HasStatus() {
		return false, false
	}
	rule, ok := e.Catalog.Rule(c.Status())
	if !ok {
		return false, false
	}

	if rule.SkipChance > 0 {
		if e.RNG.Float64() < rule.SkipChance {
			log.add(EventStatus{Side: c.Side(), Status: rule.Status, Outcome: "skip"},
				"%s %s", c.Label(), rule.SkipText)
			return true, false
		}
		if rule.OngoingText != "" {
			log.add(EventStatus{Side: c.Side(), Status: rule.Status, Outcome: "ongoing"},
				"%s%s", c.Label(), rule.OngoingText)
		}
	}

	if rule.TickDivisor > 0 {
		dmg := max(1, c.HP()/rule.TickDivisor)
		c.TakeDamage(dmg)
		log.add(EventStatus{Side: c.Side(), Status: rule.Status, Outcome: "tick", HPChange: -dmg, HPAfter: c.HP()},
			"%s %s Lost %d HP.", c.Label(), rule.TickText, dmg)
		if rule.HalvesPhysical && rule.OngoingText != "" {
			log.add(EventStatus{Side: c.Side(), Status: rule.Status, Outcome: "ongoing"},
				"%s%s", c.Label(), rule.OngoingText)
		}
	}

	if rule.RecoverChance > 0 {
		if e.RNG.Float64() < rule.RecoverChance {
			c.ClearStatus()
			log.add(EventStatus{Side: c.Side(), Status: rule.Status, Outcome: "recover"},
				"%s %s", c.Label(), rule.RecoverText)
		} else {
			log.add(EventStatus{Side: c.Side(), Status: rule.Status, Outcome: "skip"},
				"%s %s", c.Label(), rule.StayText)
			return true, false
		}
	}

	if c.StatusTurns() > 0 {
		c.statusTurns--
		if c.statusTurns <= 0 && !rule.Permanent && c.HasStatus() {
			log.add(EventStatus{Side: c.Side(), Status: rule.Status, Outcome: "expire"},
				"%s is no longer %s.", c.Label(), rule.Status)
			c.ClearStatus()
		}
	}

	if c.IsFainted() {
		log.add(EventFaint{Side: c.Side(), Cause: "status"},
			"%s fainted from status effects!", c.Label())
		return true, true
	}
	return false, false
}
