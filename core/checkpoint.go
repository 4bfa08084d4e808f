package core

// checkpoint.go implements the checkpoint-stack mechanism described in
// §4.1/§4.8/DESIGN NOTES: "implement as stacks of per-entity pre-image
// maps rather than as copy-on-write; revert restores by key." This keeps
// memory bounded to the actual write set instead of cloning whole state.
//
// CheckpointStack is embedded by both the top-level and shard-level state
// engines (core/state); each entity kind (accounts, shards, schemes,
// assets, text, action-data, ...) gets its own stack keyed by checkpoint
// id, nested to at least four deep per §4.1 (transaction, action,
// transactions-batch, top-level).

// PreImage snapshots a single key's value before a write. A nil Value
// with Existed=false marks a key that did not exist prior to the write
// (so revert deletes it rather than writing back a zero value).
type PreImage struct {
	Value   []byte
	Existed bool
}

// checkpointFrame holds the pre-images captured since its creation,
// keyed by the entity key under which they were first touched.
type checkpointFrame struct {
	id    uint64
	touch map[string]PreImage
}

// CheckpointStack is a LIFO stack of checkpoint frames over a single
// string-keyed map of byte-slice values ("the entity store").
type CheckpointStack struct {
	frames []*checkpointFrame
	nextID uint64
}

// NewCheckpointStack returns an empty stack.
func NewCheckpointStack() *CheckpointStack {
	return &CheckpointStack{}
}

// Create pushes a new checkpoint frame and returns its id.
func (cs *CheckpointStack) Create() uint64 {
	cs.nextID++
	cs.frames = append(cs.frames, &checkpointFrame{id: cs.nextID, touch: make(map[string]PreImage)})
	return cs.nextID
}

// Depth returns the number of currently-open checkpoints.
func (cs *CheckpointStack) Depth() int { return len(cs.frames) }

// RecordWrite must be called by the entity store before mutating key,
// passing its current value and whether it currently exists. It is a
// no-op if there is no open checkpoint (pure reads bypass checkpoints,
// §4.8) or if this key was already recorded within the top frame (the
// first pre-image under a frame wins).
func (cs *CheckpointStack) RecordWrite(key string, current []byte, existed bool) {
	if len(cs.frames) == 0 {
		return
	}
	top := cs.frames[len(cs.frames)-1]
	if _, ok := top.touch[key]; ok {
		return
	}
	var val []byte
	if existed {
		val = append([]byte(nil), current...)
	}
	top.touch[key] = PreImage{Value: val, Existed: existed}
}

// Discard pops the top frame, id must match. Its pre-images are merged
// into the parent frame (so an outer revert still restores them) without
// overwriting pre-images the parent already holds for the same key.
func (cs *CheckpointStack) Discard(id uint64) error {
	top, err := cs.pop(id)
	if err != nil {
		return err
	}
	if len(cs.frames) == 0 {
		return nil
	}
	parent := cs.frames[len(cs.frames)-1]
	for k, v := range top.touch {
		if _, ok := parent.touch[k]; !ok {
			parent.touch[k] = v
		}
	}
	return nil
}

// Revert pops the top frame and returns its pre-images so the caller can
// restore every touched key to its pre-checkpoint value (or delete it if
// it did not previously exist). Revert is total: nothing performed
// between Create and Revert survives (§4.1).
func (cs *CheckpointStack) Revert(id uint64) (map[string]PreImage, error) {
	top, err := cs.pop(id)
	if err != nil {
		return nil, err
	}
	return top.touch, nil
}

func (cs *CheckpointStack) pop(id uint64) (*checkpointFrame, error) {
	if len(cs.frames) == 0 {
		return nil, ErrDatabase("checkpoint stack empty")
	}
	top := cs.frames[len(cs.frames)-1]
	if top.id != id {
		return nil, ErrDatabase("checkpoint id mismatch: top is %d, got %d", top.id, id)
	}
	cs.frames = cs.frames[:len(cs.frames)-1]
	return top, nil
}
