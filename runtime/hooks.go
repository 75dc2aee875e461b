package runtime

import (
	"context"
	"sync"
)

// HookType is the point in an operation a hook runs at.
type HookType string

const (
	// BeforeRead runs before findUnique, findFirst, findMany, count,
	// aggregate and groupBy.
	BeforeRead HookType = "beforeRead"
	// AfterRead runs after a read, with its result or error.
	AfterRead HookType = "afterRead"

	// BeforeWrite runs before create, update, upsert and their batch forms.
	BeforeWrite HookType = "beforeWrite"
	// AfterWrite runs after such a write.
	AfterWrite HookType = "afterWrite"

	// BeforeDelete runs before delete and deleteMany.
	BeforeDelete HookType = "beforeDelete"
	// AfterDelete runs after a delete.
	AfterDelete HookType = "afterDelete"
)

// AllModels registers a hook for every model.
const AllModels = "*"

// HookContext is passed to hooks.
type HookContext struct {
	Context   context.Context
	Model     string
	Operation string

	// Args are the operation's arguments. Before hooks may not replace them;
	// use middleware to rewrite arguments.
	Args any

	// Result and Error are set for after hooks.
	Result any
	Error  error
}

// HookFunc is a lifecycle hook. An error from a before hook aborts the
// operation; an error from an after hook replaces the operation's result.
type HookFunc func(hc *HookContext) error

// Hooks holds lifecycle hooks per model. It is safe for concurrent use.
type Hooks struct {
	mu    sync.RWMutex
	hooks map[string]map[HookType][]HookFunc
}

// NewHooks creates an empty hook set.
func NewHooks() *Hooks {
	return &Hooks{hooks: make(map[string]map[HookType][]HookFunc)}
}

// Register adds a hook for model, or for every model with AllModels.
func (h *Hooks) Register(model string, t HookType, fn HookFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.hooks[model] == nil {
		h.hooks[model] = make(map[HookType][]HookFunc)
	}
	h.hooks[model][t] = append(h.hooks[model][t], fn)
}

// Execute runs the hooks of type t registered for hc.Model, then those
// registered for AllModels, stopping at the first error.
func (h *Hooks) Execute(hc *HookContext, t HookType) error {
	h.mu.RLock()
	fns := append([]HookFunc(nil), h.hooks[hc.Model][t]...)
	if hc.Model != AllModels {
		fns = append(fns, h.hooks[AllModels][t]...)
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		if err := fn(hc); err != nil {
			return err
		}
	}
	return nil
}

// OnBeforeRead registers a BeforeRead hook.
func (h *Hooks) OnBeforeRead(model string, fn HookFunc) { h.Register(model, BeforeRead, fn) }

// OnAfterRead registers an AfterRead hook.
func (h *Hooks) OnAfterRead(model string, fn HookFunc) { h.Register(model, AfterRead, fn) }

// OnBeforeWrite registers a BeforeWrite hook.
func (h *Hooks) OnBeforeWrite(model string, fn HookFunc) { h.Register(model, BeforeWrite, fn) }

// OnAfterWrite registers an AfterWrite hook.
func (h *Hooks) OnAfterWrite(model string, fn HookFunc) { h.Register(model, AfterWrite, fn) }

// OnBeforeDelete registers a BeforeDelete hook.
func (h *Hooks) OnBeforeDelete(model string, fn HookFunc) { h.Register(model, BeforeDelete, fn) }

// OnAfterDelete registers an AfterDelete hook.
func (h *Hooks) OnAfterDelete(model string, fn HookFunc) { h.Register(model, AfterDelete, fn) }

// Clear removes every hook.
func (h *Hooks) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = make(map[string]map[HookType][]HookFunc)
}

// ClearModel removes the hooks registered for model.
func (h *Hooks) ClearModel(model string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.hooks, model)
}

// kind groups operations by the hooks they run.
type kind int

const (
	readKind kind = iota
	writeKind
	deleteKind
)

func (k kind) hooks() (before, after HookType) {
	switch k {
	case writeKind:
		return BeforeWrite, AfterWrite
	case deleteKind:
		return BeforeDelete, AfterDelete
	}
	return BeforeRead, AfterRead
}
