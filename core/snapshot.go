package core

import "time"

// Snapshot is an immutable capture of every active agent's state plus the
// current step. Snapshots are appended to a session's history and never
// mutated afterwards.
type Snapshot struct {
	Timestamp   time.Time             `json:"timestamp"`
	Step        string                `json:"step"`
	Phase       Phase                 `json:"phase"`
	Agents      map[string]AgentState `json:"agents_state"`
	UserToAgent map[string]string     `json:"user_to_agent"`
	Interaction Interaction           `json:"interaction"`
}

// Clone returns a deep copy sharing no maps or slices with s.
func (s Snapshot) Clone() Snapshot {
	c := s
	c.Agents = make(map[string]AgentState, len(s.Agents))
	for name, st := range s.Agents {
		c.Agents[name] = st.Clone()
	}
	c.UserToAgent = make(map[string]string, len(s.UserToAgent))
	for k, v := range s.UserToAgent {
		c.UserToAgent[k] = v
	}
	return c
}
