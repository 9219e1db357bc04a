package gpu

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// SlotKind is the type of resource a pipeline slot accepts.
type SlotKind int

const (
	SlotUniformBuffer SlotKind = iota
	SlotSampledTexture
)

func (k SlotKind) String() string {
	switch k {
	case SlotUniformBuffer:
		return "uniform buffer"
	case SlotSampledTexture:
		return "sampled texture"
	default:
		return fmt.Sprintf("SlotKind(%d)", int(k))
	}
}

// Layout is a pipeline's declared slot layout: Groups[set] lists the slot
// kinds of that group in binding order.
type Layout struct {
	Groups [][]SlotKind
}

// Slots returns the slots of group set.
func (l Layout) Slots(set int) ([]SlotKind, bool) {
	if set < 0 || set >= len(l.Groups) {
		return nil, false
	}
	return l.Groups[set], true
}

// kindOf classifies a bindable resource.
func kindOf(r Resource) (SlotKind, bool) {
	switch r.(type) {
	case Texture:
		return SlotSampledTexture, true
	case Buffer:
		return SlotUniformBuffer, true
	default:
		return 0, false
	}
}

// ValidateGroup checks resources against group set of layout.
func ValidateGroup(layout Layout, set int, resources []Resource) error {
	slots, ok := layout.Slots(set)
	if !ok {
		return errors.Wrapf(ErrLayoutMismatch, "pipeline declares %d groups, got set %d", len(layout.Groups), set)
	}
	if len(resources) != len(slots) {
		return errors.Wrapf(ErrLayoutMismatch, "set %d declares %d slots, got %d resources", set, len(slots), len(resources))
	}
	for i, r := range resources {
		if r == nil {
			return errors.Wrapf(ErrLayoutMismatch, "set %d slot %d: nil resource", set, i)
		}
		kind, ok := kindOf(r)
		if !ok || kind != slots[i] {
			return errors.Wrapf(ErrLayoutMismatch, "set %d slot %d: want %s, got %T", set, i, slots[i], r)
		}
	}
	return nil
}

// BoundGroup is an immutable binding of resources to the slots of one
// group of a pipeline. Changing the data behind a group goes through the
// referenced buffers, never through rebuilding the group.
type BoundGroup struct {
	pipeline  Pipeline
	set       int
	resources []Resource
	handle    BindGroup
}

// BuildGroup validates resources against the pipeline's layout and creates
// the backend binding. Nothing is created when validation fails.
func BuildGroup(device Device, pipeline Pipeline, set int, resources ...Resource) (*BoundGroup, error) {
	if err := ValidateGroup(pipeline.Layout(), set, resources); err != nil {
		return nil, errors.Wrapf(err, "pipeline %q", pipeline.Name())
	}
	res := append([]Resource(nil), resources...)
	handle, err := device.CreateBindGroup(pipeline, set, res)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create bind group %d for pipeline %q", set, pipeline.Name())
	}
	return &BoundGroup{
		pipeline:  pipeline,
		set:       set,
		resources: res,
		handle:    handle,
	}, nil
}

func (g *BoundGroup) Pipeline() Pipeline { return g.pipeline }
func (g *BoundGroup) Set() int           { return g.set }
func (g *BoundGroup) Handle() BindGroup  { return g.handle }

// Resource returns the resource bound at slot.
func (g *BoundGroup) Resource(slot int) Resource { return g.resources[slot] }

// Len returns the number of bound slots.
func (g *BoundGroup) Len() int { return len(g.resources) }

// Release frees the backend binding; the bound resources are not owned.
func (g *BoundGroup) Release() {
	if g.handle != nil {
		g.handle.Release()
		g.handle = nil
	}
}

// GroupKey identifies a logical binding: a material name, "light" or
// "projection" within one group of one pipeline.
type GroupKey struct {
	Pipeline string
	Set      int
	Name     string
}

// GroupRegistry builds each identity at most once and hands out the shared
// group afterwards.
type GroupRegistry struct {
	device Device
	groups map[GroupKey]*BoundGroup
}

func NewGroupRegistry(device Device) *GroupRegistry {
	return &GroupRegistry{device: device, groups: make(map[GroupKey]*BoundGroup)}
}

// Get returns the group built for key.
func (r *GroupRegistry) Get(key GroupKey) (*BoundGroup, bool) {
	g, ok := r.groups[key]
	return g, ok
}

// Build creates the group for key. Building an identity twice is an error.
func (r *GroupRegistry) Build(pipeline Pipeline, key GroupKey, resources ...Resource) (*BoundGroup, error) {
	if key.Pipeline != pipeline.Name() || key.Set < 0 {
		return nil, errors.AssertionFailedf("group key %+v does not belong to pipeline %q", key, pipeline.Name())
	}
	if _, ok := r.groups[key]; ok {
		return nil, errors.AssertionFailedf("group %+v already built", key)
	}
	g, err := BuildGroup(r.device, pipeline, key.Set, resources...)
	if err != nil {
		return nil, err
	}
	r.groups[key] = g
	return g, nil
}

// Len returns the number of built groups.
func (r *GroupRegistry) Len() int { return len(r.groups) }

// Release frees every group.
func (r *GroupRegistry) Release() {
	for k, g := range r.groups {
		g.Release()
		delete(r.groups, k)
	}
}
