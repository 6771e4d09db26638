package cache

import (
	"encoding/json"
	"sort"
)

// PendingSet holds module ids whose cached document has not been confirmed
// by the gateway yet. It is not safe for concurrent use; Store guards it.
type PendingSet struct {
	ids map[string]struct{}
}

func NewPendingSet(ids ...string) *PendingSet {
	p := &PendingSet{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		p.Add(id)
	}
	return p
}

func (p *PendingSet) Add(id string)    { p.ids[id] = struct{}{} }
func (p *PendingSet) Remove(id string) { delete(p.ids, id) }
func (p *PendingSet) Len() int         { return len(p.ids) }
func (p *PendingSet) Clear()           { p.ids = make(map[string]struct{}) }

func (p *PendingSet) Has(id string) bool {
	_, ok := p.ids[id]
	return ok
}

// List returns the ids sorted
func (p *PendingSet) List() []string {
	out := make([]string, 0, len(p.ids))
	for id := range p.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// MarshalJSON encodes the set as a JSON array
func (p *PendingSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.List())
}

func (p *PendingSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	p.ids = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			p.ids[id] = struct{}{}
		}
	}
	return nil
}
