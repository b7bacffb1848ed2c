package battle

import "fmt"

// BattleEvent is a structured record of something that happened in battle.
// Every event is paired with the log line that describes it.
type BattleEvent interface {
	EventType() string
}

// LogEntry pairs a log line with its event. Event is nil for narration.
type LogEntry struct {
	Text  string      `json:"text"`
	Event BattleEvent `json:"event,omitempty"`
}

// Log is the append-only battle log.
type Log struct {
	entries  []LogEntry
	observer func(LogEntry)
}

func newLog(observer func(LogEntry)) *Log {
	return &Log{observer: observer}
}

func (l *Log) add(ev BattleEvent, format string, args ...any) {
	e := LogEntry{Text: fmt.Sprintf(format, args...), Event: ev}
	l.entries = append(l.entries, e)
	if l.observer != nil {
		l.observer(e)
	}
}

func (l *Log) note(format string, args ...any) { l.add(nil, format, args...) }

// Lines returns a copy of the log text.
func (l *Log) Lines() []string {
	out := make([]string, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.Text
	}
	return out
}

// Entries returns a copy of the log entries.
func (l *Log) Entries() []LogEntry {
	return append([]LogEntry(nil), l.entries...)
}

func (l *Log) Len() int { return len(l.entries) }

// CombatantSnapshot is a point-in-time view of a combatant.
type CombatantSnapshot struct {
	Side   Side         `json:"side"`
	Name   string       `json:"name"`
	HP     int          `json:"hp"`
	MaxHP  int          `json:"max_hp"`
	Types  []string     `json:"types"`
	Status Status       `json:"status,omitempty"`
	Stages map[Stat]int `json:"stages,omitempty"`
	Moves  []string     `json:"moves"`
}

// Snapshot captures the combatant's current state.
func Snapshot(c *Combatant) CombatantSnapshot {
	s := CombatantSnapshot{
		Side:   c.Side(),
		Name:   c.Name(),
		HP:     c.HP(),
		MaxHP:  c.MaxHP(),
		Types:  c.Types(),
		Status: c.Status(),
	}
	for st := Stat(0); st < numStats; st++ {
		if v := c.Stage(st); v != 0 {
			if s.Stages == nil {
				s.Stages = make(map[Stat]int)
			}
			s.Stages[st] = v
		}
	}
	for _, m := range c.Moves() {
		s.Moves = append(s.Moves, m.Move.Name)
	}
	return s
}

// --- Concrete event types ---

type EventBattleStart struct {
	Combatants [2]CombatantSnapshot `json:"combatants"`
	FirstActor Side                 `json:"first_actor"`
}

func (EventBattleStart) EventType() string { return "battle_start" }

type EventTurnStart struct {
	Turn  int    `json:"turn"`
	Actor Side   `json:"actor"`
	HP    [2]int `json:"hp"`
}

func (EventTurnStart) EventType() string { return "turn_start" }

type EventMoveUsed struct {
	Side     Side     `json:"side"`
	Move     string   `json:"move"`
	Type     string   `json:"type"`
	Category Category `json:"category"`
	Struggle bool     `json:"struggle,omitempty"`
}

func (EventMoveUsed) EventType() string { return "move_used" }

type EventMiss struct {
	Side     Side   `json:"side"`
	Move     string `json:"move"`
	Roll     int    `json:"roll"`
	Accuracy int    `json:"accuracy"`
}

func (EventMiss) EventType() string { return "miss" }

type EventDamage struct {
	Target        Side    `json:"target"`
	Move          string  `json:"move"`
	Damage        int     `json:"damage"`
	Critical      bool    `json:"critical"`
	Effectiveness float64 `json:"effectiveness"`
	Hits          int     `json:"hits"`
	Blocked       bool    `json:"blocked,omitempty"`
	HPAfter       int     `json:"hp_after"`
}

func (EventDamage) EventType() string { return "damage" }

type EventHeal struct {
	Side    Side   `json:"side"`
	Source  string `json:"source"` // move, drain
	Amount  int    `json:"amount"`
	HPAfter int    `json:"hp_after"`
}

func (EventHeal) EventType() string { return "heal" }

type EventRecoil struct {
	Side    Side `json:"side"`
	Amount  int  `json:"amount"`
	HPAfter int  `json:"hp_after"`
}

func (EventRecoil) EventType() string { return "recoil" }

type EventStatus struct {
	Side     Side   `json:"side"`
	Status   Status `json:"status"`
	Outcome  string `json:"outcome"` // inflict, skip, ongoing, tick, recover, expire
	Turns    int    `json:"turns,omitempty"`
	HPChange int    `json:"hp_change,omitempty"`
	HPAfter  int    `json:"hp_after,omitempty"`
}

func (EventStatus) EventType() string { return "status" }

type EventStatChange struct {
	Side  Side `json:"side"`
	Stat  Stat `json:"stat"`
	Delta int  `json:"delta"`
}

func (EventStatChange) EventType() string { return "stat_change" }

type EventFlag struct {
	Side Side   `json:"side"`
	Flag string `json:"flag"` // protect, flinch, recharge
	Set  bool   `json:"set"`
}

func (EventFlag) EventType() string { return "flag" }

type EventFaint struct {
	Side  Side   `json:"side"`
	Cause string `json:"cause"` // damage, status, recoil
}

func (EventFaint) EventType() string { return "faint" }

type EventBattleEnd struct {
	Winner    Winner `json:"winner"`
	TurnCount int    `json:"turn_count"`
	HP        [2]int `json:"hp"`
}

func (EventBattleEnd) EventType() string { return "battle_end" }
