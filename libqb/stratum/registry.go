package stratum

import (
	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/sets/treeset"
	"github.com/qbound/qbound/qbound"
)

// Registry maps an invariant value k to the keys that are minor-minimal with value k.
// A key appears under at most one k.  Iteration is ordered by k, then by key.
type Registry struct {
	byValue *treemap.Map // int => *treeset.Set of string
	valueOf map[qbound.Key]int
}

func NewRegistry() *Registry {
	return &Registry{
		byValue: treemap.NewWithIntComparator(),
		valueOf: make(map[qbound.Key]int),
	}
}

// Add registers key as minimal with value k, moving it if it was registered under another value.
func (reg *Registry) Add(k int, key qbound.Key) {
	if prev, exists := reg.valueOf[key]; exists {
		if prev == k {
			return
		}
		reg.remove(prev, key)
	}

	set, found := reg.byValue.Get(k)
	if !found {
		set = treeset.NewWithStringComparator()
		reg.byValue.Put(k, set)
	}
	set.(*treeset.Set).Add(string(key))
	reg.valueOf[key] = k
}

func (reg *Registry) remove(k int, key qbound.Key) {
	if set, found := reg.byValue.Get(k); found {
		keys := set.(*treeset.Set)
		keys.Remove(string(key))
		if keys.Empty() {
			reg.byValue.Remove(k)
		}
	}
	delete(reg.valueOf, key)
}

// Lookup returns the value a key is registered under.
func (reg *Registry) Lookup(key qbound.Key) (k int, found bool) {
	k, found = reg.valueOf[key]
	return
}

// Keys returns the keys registered under k in ascending order.
func (reg *Registry) Keys(k int) []qbound.Key {
	set, found := reg.byValue.Get(k)
	if !found {
		return nil
	}
	vals := set.(*treeset.Set).Values()
	keys := make([]qbound.Key, len(vals))
	for i, v := range vals {
		keys[i] = qbound.Key(v.(string))
	}
	return keys
}

// Values returns every k with at least one registered key, ascending.
func (reg *Registry) Values() []int {
	ks := reg.byValue.Keys()
	values := make([]int, len(ks))
	for i, k := range ks {
		values[i] = k.(int)
	}
	return values
}

func (reg *Registry) Len() int {
	return len(reg.valueOf)
}

func (reg *Registry) toArtifact() *artifact {
	a := &artifact{
		Family: qbound.FamilyMinimals,
		Keys:   make([]qbound.Key, 0, reg.Len()),
		Values: make([]int, 0, reg.Len()),
	}
	it := reg.byValue.Iterator()
	for it.Next() {
		k := it.Key().(int)
		for _, v := range it.Value().(*treeset.Set).Values() {
			a.Keys = append(a.Keys, qbound.Key(v.(string)))
			a.Values = append(a.Values, k)
		}
	}
	return a
}

func (reg *Registry) fromArtifact(a *artifact) {
	for i, key := range a.Keys {
		reg.Add(a.Values[i], key)
	}
}
