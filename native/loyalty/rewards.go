package loyalty

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Reward describes a single redeemable catalog entry.
type Reward struct {
	ID         string `yaml:"id" json:"id"`
	Name       string `yaml:"name" json:"name"`
	Kind       string `yaml:"kind" json:"kind"`
	Value      string `yaml:"value" json:"value"`
	PointsCost int64  `yaml:"pointsCost" json:"pointsCost"`
}

// Catalog is the static reward catalog consulted during redemption.
type Catalog struct {
	rewards map[string]Reward
	order   []string
}

// DefaultCatalog returns the built-in reward set.
func DefaultCatalog() *Catalog {
	catalog := &Catalog{rewards: make(map[string]Reward)}
	for _, reward := range []Reward{
		{ID: "discount-5", Name: "$5 off next purchase", Kind: "discount", Value: "5.00", PointsCost: 500},
		{ID: "discount-20", Name: "$20 off next purchase", Kind: "discount", Value: "20.00", PointsCost: 1_800},
		{ID: "free-service", Name: "One complimentary service booking", Kind: "service", Value: "standard", PointsCost: 3_000},
		{ID: "free-shipping", Name: "Free shipping credit", Kind: "shipping", Value: "standard", PointsCost: 750},
		{ID: "priority-shipping", Name: "Priority shipping credit", Kind: "shipping", Value: "priority", PointsCost: 1_200},
	} {
		catalog.add(reward)
	}
	return catalog
}

// LoadCatalog reads a reward catalog from a YAML file. Entries missing an id
// or a positive points cost are rejected.
func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loyalty: read catalog: %w", err)
	}
	var entries []Reward
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("loyalty: parse catalog: %w", err)
	}
	catalog := &Catalog{rewards: make(map[string]Reward, len(entries))}
	for _, reward := range entries {
		reward.ID = strings.TrimSpace(reward.ID)
		if reward.ID == "" {
			return nil, fmt.Errorf("loyalty: catalog entry missing id")
		}
		if reward.PointsCost <= 0 {
			return nil, fmt.Errorf("loyalty: catalog entry %s requires a positive points cost", reward.ID)
		}
		if _, exists := catalog.rewards[reward.ID]; exists {
			return nil, fmt.Errorf("loyalty: duplicate catalog entry %s", reward.ID)
		}
		catalog.add(reward)
	}
	return catalog, nil
}

func (c *Catalog) add(reward Reward) {
	c.rewards[reward.ID] = reward
	c.order = append(c.order, reward.ID)
}

// Find looks a reward up by id.
func (c *Catalog) Find(id string) (Reward, bool) {
	if c == nil {
		return Reward{}, false
	}
	reward, ok := c.rewards[strings.TrimSpace(id)]
	return reward, ok
}

// Rewards lists catalog entries in declaration order.
func (c *Catalog) Rewards() []Reward {
	if c == nil {
		return nil
	}
	out := make([]Reward, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.rewards[id])
	}
	return out
}
