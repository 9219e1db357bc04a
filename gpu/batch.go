package gpu

import (
	"github.com/cockroachdb/errors"
)

// Command is one recorded GPU command. Backends encode the concrete types
// below in order.
type Command interface {
	command()
}

type CopyBufferCmd struct {
	Src, Dst Buffer
	Size     uint64
}

type BeginRenderPassCmd struct {
	Framebuffer Framebuffer
	Extent      Extent
	Clear       ClearValues
}

type SetViewportCmd struct {
	Viewport Viewport
}

type BindPipelineCmd struct {
	Pipeline Pipeline
}

type BindGroupCmd struct {
	Pipeline Pipeline
	Set      int
	Group    *BoundGroup
}

type BindVertexBufferCmd struct {
	Buffer Buffer
}

type DrawCmd struct {
	VertexCount   uint32
	InstanceCount uint32
	FirstVertex   uint32
}

type EndRenderPassCmd struct{}

func (CopyBufferCmd) command()       {}
func (BeginRenderPassCmd) command()  {}
func (SetViewportCmd) command()      {}
func (BindPipelineCmd) command()     {}
func (BindGroupCmd) command()        {}
func (BindVertexBufferCmd) command() {}
func (DrawCmd) command()             {}
func (EndRenderPassCmd) command()    {}

// CommandBatch accumulates commands in issue order until Commit.
type CommandBatch struct {
	commands  []Command
	releases  []func()
	inPass    bool
	pipeline  Pipeline
	committed bool
}

// NewCommandBatch returns an empty batch.
func NewCommandBatch() *CommandBatch {
	return &CommandBatch{}
}

// Len returns the number of recorded commands.
func (b *CommandBatch) Len() int { return len(b.commands) }

// InRenderPass reports whether a render pass is open.
func (b *CommandBatch) InRenderPass() bool { return b.inPass }

func (b *CommandBatch) check() error {
	if b.committed {
		return errors.AssertionFailedf("command batch already committed")
	}
	return nil
}

// CopyScratch records a copy of a scratch region into dst and takes
// ownership of the region. The region returns to its pool once the batch
// has completed on the GPU.
func (b *CommandBatch) CopyScratch(src ScratchRegion, dst Buffer) error {
	if err := b.check(); err != nil {
		return err
	}
	if b.inPass {
		return errors.AssertionFailedf("buffer copy recorded inside a render pass")
	}
	if dst == nil {
		return errors.AssertionFailedf("buffer copy has no destination")
	}
	buf := src.Buffer()
	size := src.Size()
	if dst.Size() < size {
		return errors.AssertionFailedf("copy of %d bytes overflows destination of %d bytes", size, dst.Size())
	}
	release, err := src.take()
	if err != nil {
		return err
	}
	b.commands = append(b.commands, CopyBufferCmd{Src: buf, Dst: dst, Size: size})
	b.releases = append(b.releases, release)
	return nil
}

// CopyBuffer records a copy between two buffers the caller keeps alive.
func (b *CommandBatch) CopyBuffer(src, dst Buffer, size uint64) error {
	if err := b.check(); err != nil {
		return err
	}
	if b.inPass {
		return errors.AssertionFailedf("buffer copy recorded inside a render pass")
	}
	b.commands = append(b.commands, CopyBufferCmd{Src: src, Dst: dst, Size: size})
	return nil
}

// BeginRenderPass opens a render pass on fb.
func (b *CommandBatch) BeginRenderPass(fb Framebuffer, extent Extent, clear ClearValues) error {
	if err := b.check(); err != nil {
		return err
	}
	if b.inPass {
		return errors.AssertionFailedf("render pass already open")
	}
	b.inPass = true
	b.pipeline = nil
	b.commands = append(b.commands, BeginRenderPassCmd{Framebuffer: fb, Extent: extent, Clear: clear})
	return nil
}

// SetViewport records dynamic viewport state.
func (b *CommandBatch) SetViewport(vp Viewport) error {
	if err := b.check(); err != nil {
		return err
	}
	b.commands = append(b.commands, SetViewportCmd{Viewport: vp})
	return nil
}

// BindPipeline selects the pipeline for following group binds and draws.
func (b *CommandBatch) BindPipeline(p Pipeline) error {
	if err := b.check(); err != nil {
		return err
	}
	if !b.inPass {
		return errors.AssertionFailedf("pipeline %q bound outside a render pass", p.Name())
	}
	b.pipeline = p
	b.commands = append(b.commands, BindPipelineCmd{Pipeline: p})
	return nil
}

// BindGroups binds groups to consecutive sets starting at 0.
func (b *CommandBatch) BindGroups(groups ...*BoundGroup) error {
	if err := b.check(); err != nil {
		return err
	}
	if b.pipeline == nil {
		return errors.AssertionFailedf("groups bound without a pipeline")
	}
	for set, g := range groups {
		if g.Pipeline() != b.pipeline {
			return errors.AssertionFailedf("group for pipeline %q bound to pipeline %q",
				g.Pipeline().Name(), b.pipeline.Name())
		}
		if g.Set() != set {
			return errors.AssertionFailedf("group built for set %d bound at set %d", g.Set(), set)
		}
		b.commands = append(b.commands, BindGroupCmd{Pipeline: b.pipeline, Set: set, Group: g})
	}
	return nil
}

// BindVertexBuffer binds the vertex stream for following draws.
func (b *CommandBatch) BindVertexBuffer(buf Buffer) error {
	if err := b.check(); err != nil {
		return err
	}
	b.commands = append(b.commands, BindVertexBufferCmd{Buffer: buf})
	return nil
}

// Draw records a non-indexed draw with the bound pipeline.
func (b *CommandBatch) Draw(vertexCount, instanceCount, firstVertex uint32) error {
	if err := b.check(); err != nil {
		return err
	}
	if !b.inPass {
		return errors.AssertionFailedf("draw recorded outside a render pass")
	}
	if b.pipeline == nil {
		return errors.AssertionFailedf("draw recorded without a pipeline")
	}
	b.commands = append(b.commands, DrawCmd{
		VertexCount:   vertexCount,
		InstanceCount: instanceCount,
		FirstVertex:   firstVertex,
	})
	return nil
}

// EndRenderPass closes the open render pass.
func (b *CommandBatch) EndRenderPass() error {
	if err := b.check(); err != nil {
		return err
	}
	if !b.inPass {
		return errors.AssertionFailedf("no render pass to end")
	}
	b.inPass = false
	b.pipeline = nil
	b.commands = append(b.commands, EndRenderPassCmd{})
	return nil
}

// Commit finalizes the batch. A render pass left open is an error: the
// caller lost track of its pass.
func (b *CommandBatch) Commit() (*Batch, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	if b.inPass {
		return nil, errors.AssertionFailedf("command batch committed with an open render pass")
	}
	b.committed = true
	batch := &Batch{commands: b.commands, releases: b.releases}
	b.commands, b.releases = nil, nil
	return batch, nil
}

// Discard drops the recorded commands and returns every scratch region the
// batch took ownership of.
func (b *CommandBatch) Discard() {
	for _, r := range b.releases {
		r()
	}
	b.commands, b.releases = nil, nil
	b.committed = true
}

// Batch is an immutable, submittable command list.
type Batch struct {
	commands  []Command
	releases  []func()
	submitted bool
}

// Commands returns the recorded commands in issue order. The slice must not
// be modified.
func (b *Batch) Commands() []Command {
	return b.commands
}

// markSubmitted enforces single use.
func (b *Batch) markSubmitted() error {
	if b.submitted {
		return errors.AssertionFailedf("command batch submitted twice")
	}
	b.submitted = true
	return nil
}

// release returns the scratch regions the batch owns.
func (b *Batch) release() {
	for _, r := range b.releases {
		r()
	}
	b.releases = nil
}
